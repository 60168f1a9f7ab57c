// Package extract implements the one-shot, offline pass that turns a
// decoded packet capture into a deterministic set of connection scripts:
// grouping packets by four-tuple, splitting each connection into
// alternating bursts, separating application think-time from transport
// retransmission delay, and snapshotting the byte progress of parallel
// connections at the moment a delayed packet was captured.
package extract

import (
	"math"
	"net"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/traceroam/tracereplay/pktdesc"
	"github.com/traceroam/tracereplay/script"
)

// PacketRecord is one decoded TCP segment, as surfaced by a Decoder.
type PacketRecord struct {
	SrcIP      net.IP
	SrcPort    int
	DstIP      net.IP
	DstPort    int
	PayloadLen int
	RelTime    float64 // seconds, relative to capture start
	Frame      uint32  // monotonically increasing
}

// Decoder is the boundary between a capture source and the extraction
// algorithm: three tabular streams, decoupled from any particular decoder
// implementation or on-disk file layout.
type Decoder interface {
	// HTTPRequestFrames returns the set of frame numbers that carry an
	// HTTP request.
	HTTPRequestFrames() (map[uint32]bool, error)
	// Packets returns the TCP segments in the capture. Zero-payload
	// segments may be included; Extract drops them. Order is not required
	// to be frame-sorted; Extract sorts defensively.
	Packets() ([]PacketRecord, error)
	// RetransmissionFrames returns the frame numbers flagged as transport
	// retransmission-timeout events, each mapped to a per-frame value (an
	// RTO where the decoder measures one; pcapsniff records the frame's
	// capture-relative time instead). Extract consumes only frame membership.
	RetransmissionFrames() (map[uint32]float64, error)
}

// StreamDecoder is a Decoder backed directly by in-memory slices/maps, for
// callers that already have decoded data (tests, or a non-pcap source).
type StreamDecoder struct {
	HTTPFrames map[uint32]bool
	PacketList []PacketRecord
	RTOFrames  map[uint32]float64
}

func (d StreamDecoder) HTTPRequestFrames() (map[uint32]bool, error)     { return d.HTTPFrames, nil }
func (d StreamDecoder) Packets() ([]PacketRecord, error)                { return d.PacketList, nil }
func (d StreamDecoder) RetransmissionFrames() (map[uint32]float64, error) { return d.RTOFrames, nil }

type direction int

const (
	dirNone direction = iota
	dirClient
	dirServer
)

// connState is the mutable accumulator for one connection while Extract
// walks the packet stream; it is frozen into a script.Script once the
// stream is exhausted.
type connState struct {
	id        script.ConnID
	startTime float64

	currentDirection direction
	lastTime         float64
	totalBytes       uint64

	burstCount int
	burstBytes uint64

	clientPackets []pktdesc.Packet
	serverPackets []pktdesc.Packet
	reqCounts     []int
	repCounts     []int
	expFromServer []uint64
	expFromClient []uint64
}

func (s *connState) flushBurst() {
	if s.burstCount == 0 {
		return
	}
	switch s.currentDirection {
	case dirClient:
		s.reqCounts = append(s.reqCounts, s.burstCount)
		s.expFromClient = append(s.expFromClient, s.burstBytes)
	case dirServer:
		s.repCounts = append(s.repCounts, s.burstCount)
		s.expFromServer = append(s.expFromServer, s.burstBytes)
	}
	s.burstCount = 0
	s.burstBytes = 0
}

func tupleKey(srcIP net.IP, srcPort int, dstIP net.IP, dstPort int) string {
	return srcIP.String() + "|" + itoa(srcPort) + "|" + dstIP.String() + "|" + itoa(dstPort)
}

func itoa(v int) string {
	// Small, allocation-light helper; avoids pulling in strconv at every
	// call site for a value that's always a 16-bit port.
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [8]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Extract runs the algorithm of spec §4.1 over dec's three streams and
// returns the ordered, deterministic connection scripts.
func Extract(dec Decoder) ([]script.Script, error) {
	httpFrames, err := dec.HTTPRequestFrames()
	if err != nil {
		return nil, errors.Wrap(err, "reading HTTP request frame set")
	}
	if httpFrames == nil {
		httpFrames = map[uint32]bool{}
	}

	rtoFrames, err := dec.RetransmissionFrames()
	if err != nil {
		return nil, errors.Wrap(err, "reading retransmission frame set")
	}
	if rtoFrames == nil {
		rtoFrames = map[uint32]float64{}
	}

	packets, err := dec.Packets()
	if err != nil {
		return nil, errors.Wrap(err, "reading packet stream")
	}
	sorted := make([]PacketRecord, len(packets))
	copy(sorted, packets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })

	states := map[string]*connState{}
	var order []string

	for _, rec := range sorted {
		// Step 1: drop zero-payload packets.
		if rec.PayloadLen <= 0 {
			continue
		}

		key := tupleKey(rec.SrcIP, rec.SrcPort, rec.DstIP, rec.DstPort)
		revKey := tupleKey(rec.DstIP, rec.DstPort, rec.SrcIP, rec.SrcPort)

		var st *connState
		var dir direction
		switch {
		case states[key] != nil:
			st = states[key]
			dir = dirClient
		case states[revKey] != nil:
			st = states[revKey]
			dir = dirServer
		default:
			st = &connState{
				id: script.ConnID{
					ClientIP:   rec.SrcIP,
					ClientPort: rec.SrcPort,
					ServerIP:   rec.DstIP,
					ServerPort: rec.DstPort,
				},
				startTime: rec.RelTime,
				lastTime:  rec.RelTime,
			}
			states[key] = st
			order = append(order, key)
			dir = dirClient
		}

		// Step 3: flush the closed burst on a direction change.
		if st.currentDirection != dirNone && dir != st.currentDirection {
			st.flushBurst()
		}
		st.currentDirection = dir

		gap := rec.RelTime - st.lastTime
		st.lastTime = rec.RelTime

		// Step 4: compute this packet's application delay.
		var delaySec float64
		if rtoIsSet(rtoFrames, rec.Frame) {
			delaySec = 0
		} else {
			var httpComponent, sshComponent float64
			if httpFrames[rec.Frame] {
				httpComponent = gap
			}
			if gap > 1.0 {
				sshComponent = gap
			}
			delaySec = math.Max(httpComponent, sshComponent)
			if delaySec < 1e-6 {
				delaySec = 0
			}
		}

		pkt := pktdesc.New(rec.PayloadLen).WithDelay(secondsToDuration(delaySec))

		// Step 5: snapshot parallel connections' progress.
		if delaySec > 0 {
			for _, k := range order {
				other := states[k]
				if other == st {
					continue
				}
				if !other.id.ClientIP.Equal(st.id.ClientIP) || !other.id.ServerIP.Equal(st.id.ServerIP) {
					continue
				}
				if other.totalBytes == 0 {
					continue
				}
				pkt.AddPrecondition(other.id.ClientPort, other.id.ServerPort, other.totalBytes)
			}
		}

		switch dir {
		case dirClient:
			st.clientPackets = append(st.clientPackets, pkt)
		case dirServer:
			st.serverPackets = append(st.serverPackets, pkt)
		}
		st.burstCount++
		st.burstBytes += uint64(rec.PayloadLen)
		st.totalBytes += uint64(rec.PayloadLen)
	}

	// Step 6: flush the final open burst on every connection.
	scripts := make([]script.Script, 0, len(order))
	for _, k := range order {
		st := states[k]
		st.flushBurst()
		scripts = append(scripts, script.Script{
			ID:                 st.id,
			StartTime:          secondsToDuration(st.startTime),
			ClientPackets:      st.clientPackets,
			ServerPackets:      st.serverPackets,
			ReqCounts:          st.reqCounts,
			RepCounts:          st.repCounts,
			ExpBytesFromServer: st.expFromServer,
			ExpBytesFromClient: st.expFromClient,
		})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].ID.Less(scripts[j].ID) })
	return scripts, nil
}

func rtoIsSet(rtoFrames map[uint32]float64, frame uint32) bool {
	_, ok := rtoFrames[frame]
	return ok
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
