// Package pcapsniff adapts a real packet capture file into an
// extract.Decoder, replacing the original tool's tshark subprocess and
// fixed-filename intermediate files with an in-process gopacket/pcap
// read.
package pcapsniff

import (
	"bytes"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"

	"github.com/traceroam/tracereplay/extract"
)

// httpMethods is the set of request-line prefixes CalculatePacketDelay's
// companion heuristic in the original extraction tool treats as "this
// frame opens an HTTP request" (spec §6 "HTTP request detection").
var httpMethods = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("PUT "), []byte("DELETE "),
	[]byte("HEAD "), []byte("OPTIONS "), []byte("PATCH "), []byte("CONNECT "),
	[]byte("TRACE "),
}

// Decoder reads a single pcap/pcapng file into the three tabular streams
// extract.Decoder needs, computing HTTP-request and retransmission frame
// sets as it goes rather than requiring a second pass. Each flagged
// retransmission frame is mapped to its capture-relative time in seconds;
// no RTO value is measured.
type Decoder struct {
	path string

	loaded     bool
	packets    []extract.PacketRecord
	httpFrames map[uint32]bool
	rtoFrames  map[uint32]float64
}

// Open prepares a Decoder over the capture at path; the file itself isn't
// read until one of the Decoder interface methods is called.
func Open(path string) *Decoder {
	return &Decoder{path: path}
}

// streamState tracks the highest TCP sequence number observed so far in
// one direction of one connection, the basis for this package's
// retransmission heuristic (spec §6 "TCP retransmission heuristic"): a
// segment whose sequence number doesn't advance past the high-water mark
// already seen for its direction carries data the peer has seen before.
type streamState struct {
	maxSeqSeen      uint32
	haveSeenAnySeq  bool
}

func (d *Decoder) load() error {
	if d.loaded {
		return nil
	}
	handle, err := pcap.OpenOffline(d.path)
	if err != nil {
		return errors.Wrapf(err, "failed to open capture %s", d.path)
	}
	defer handle.Close()

	source := gopacket.NewPacketSource(handle, handle.LinkType())

	d.httpFrames = map[uint32]bool{}
	d.rtoFrames = map[uint32]float64{}
	streams := map[string]*streamState{}

	var frame uint32
	var startTime time.Time
	for pkt := range source.Packets() {
		frame++

		netLayer := pkt.NetworkLayer()
		if netLayer == nil {
			continue
		}
		var srcIP, dstIP net.IP
		switch l := netLayer.(type) {
		case *layers.IPv4:
			srcIP, dstIP = l.SrcIP, l.DstIP
		case *layers.IPv6:
			srcIP, dstIP = l.SrcIP, l.DstIP
		default:
			continue
		}

		tcp, ok := pkt.TransportLayer().(*layers.TCP)
		if !ok {
			continue
		}

		ts := pkt.Metadata().Timestamp
		if startTime.IsZero() {
			startTime = ts
		}
		relTime := ts.Sub(startTime).Seconds()

		payload := tcp.LayerPayload()
		rec := extract.PacketRecord{
			SrcIP:      srcIP,
			SrcPort:    int(tcp.SrcPort),
			DstIP:      dstIP,
			DstPort:    int(tcp.DstPort),
			PayloadLen: len(payload),
			RelTime:    relTime,
			Frame:      frame,
		}
		d.packets = append(d.packets, rec)

		if len(payload) == 0 {
			continue
		}

		key := srcIP.String() + ":" + itoa(int(tcp.SrcPort)) + "->" + dstIP.String() + ":" + itoa(int(tcp.DstPort))
		st, ok := streams[key]
		if !ok {
			st = &streamState{}
			streams[key] = st
		}
		if st.haveSeenAnySeq && seqLessOrEqual(tcp.Seq, st.maxSeqSeen) {
			d.rtoFrames[frame] = relTime
		} else {
			st.maxSeqSeen = tcp.Seq
			st.haveSeenAnySeq = true
		}

		if isHTTPRequest(payload) {
			d.httpFrames[frame] = true
		}
	}

	d.loaded = true
	return nil
}

// seqLessOrEqual compares TCP sequence numbers with 32-bit wraparound, per
// RFC 1323 appendix A's serial-number arithmetic: a is "behind or equal to"
// b if b-a, interpreted as a signed 32-bit delta, is >= 0.
func seqLessOrEqual(a, b uint32) bool {
	return int32(a-b) <= 0
}

func isHTTPRequest(payload []byte) bool {
	for _, m := range httpMethods {
		if bytes.HasPrefix(payload, m) {
			return true
		}
	}
	return false
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func (d *Decoder) HTTPRequestFrames() (map[uint32]bool, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	return d.httpFrames, nil
}

func (d *Decoder) Packets() ([]extract.PacketRecord, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	return d.packets, nil
}

func (d *Decoder) RetransmissionFrames() (map[uint32]float64, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	return d.rtoFrames, nil
}
