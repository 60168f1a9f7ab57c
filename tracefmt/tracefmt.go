// Package tracefmt encodes and decodes the line-oriented trace file format
// defined in spec §6: a deterministic, `#`-commentable text format that
// describes every connection the extractor found as a sequence of packet
// bursts, burst counts, and expected-byte thresholds.
//
// Reading and writing both go through an afero.Fs so tests can exercise the
// exact round-trip property (spec §8) against an in-memory filesystem.
package tracefmt

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/traceroam/tracereplay/pktdesc"
	"github.com/traceroam/tracereplay/script"
)

var (
	ipv4Pattern    = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)
	intLinePattern = regexp.MustCompile(`^[0-9]+$`)
	idLinePattern  = regexp.MustCompile(`^\S+\t[0-9]+\t\S+\t[0-9]+\t[0-9]+(\.[0-9]+)?$`)
	pktLinePattern = regexp.MustCompile(`^[0-9]+\t[0-9]+(\.[0-9]+)?$`)
	parLinePattern = regexp.MustCompile(`^[0-9]+\t[0-9]+\t[0-9]+$`)
)

// Header is the deterministic comment block written at the top of every
// trace file. It documents the format inline, the way the ns-3 original did.
const Header = `# ------------------------------------------------
# Trace file
# File structure:-
# Number of connections
# For each connection {
#   Ip_Client	Port_Client	Ip_Server	Port_Server	Start_Time
#   Number of packets from client to server
#   For each packet { Packet_Size	Packet_Delay [Parallel snapshot] }
#   Number of client request bursts, then each burst's packet count
#   Number of server reply thresholds, then each threshold
#   Number of packets from server to client
#   For each packet { Packet_Size	Packet_Delay [Parallel snapshot] }
#   Number of server reply bursts, then each burst's packet count
#   Number of client request thresholds, then each threshold
# }
# ------------------------------------------------
`

// WriteFile encodes scripts and writes them to path on fs. Parent
// directories are not created.
func WriteFile(fs afero.Fs, path string, scripts []script.Script) error {
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create trace file %s", path)
	}
	defer f.Close()

	if err := Encode(f, scripts); err != nil {
		return errors.Wrapf(err, "failed to encode trace file %s", path)
	}
	return nil
}

// ReadFile opens path on fs and decodes it.
func ReadFile(fs afero.Fs, path string) ([]script.Script, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open trace file %s", path)
	}
	defer f.Close()

	scripts, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode trace file %s", path)
	}
	return scripts, nil
}

// Encode writes scripts to w in the format of spec §6. Output is
// deterministic: encoding the same scripts twice produces byte-identical
// output (spec §8's round-trip property).
func Encode(w io.Writer, scripts []script.Script) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(Header); err != nil {
		return err
	}
	fmt.Fprintln(bw, len(scripts))

	for _, s := range scripts {
		writeConnID(bw, s.ID, s.StartTime)
		writePacketList(bw, s.ClientPackets)
		writeIntList(bw, s.ReqCounts)
		writeUint64List(bw, s.ExpBytesFromServer)
		writePacketList(bw, s.ServerPackets)
		writeIntList(bw, s.RepCounts)
		writeUint64List(bw, s.ExpBytesFromClient)
	}

	return bw.Flush()
}

func writeConnID(w *bufio.Writer, id script.ConnID, start time.Duration) {
	fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n",
		id.ClientIP.String(), id.ClientPort, id.ServerIP.String(), id.ServerPort,
		formatSeconds(start))
}

func writePacketList(w *bufio.Writer, packets []pktdesc.Packet) {
	fmt.Fprintln(w, len(packets))
	for _, p := range packets {
		fmt.Fprintf(w, "%d\t%s\n", p.Size, formatSeconds(p.Delay))
		if p.Delay > 0 {
			pre := p.Preconditions()
			fmt.Fprintln(w, len(pre))
			for _, pc := range pre {
				fmt.Fprintf(w, "%d\t%d\t%d\n", pc.ClientPort, pc.ServerPort, pc.ByteThreshold)
			}
		}
	}
}

func writeIntList(w *bufio.Writer, vals []int) {
	fmt.Fprintln(w, len(vals))
	for _, v := range vals {
		fmt.Fprintln(w, v)
	}
}

func writeUint64List(w *bufio.Writer, vals []uint64) {
	fmt.Fprintln(w, len(vals))
	for _, v := range vals {
		fmt.Fprintln(w, v)
	}
}

func formatSeconds(d time.Duration) string {
	sec := d.Seconds()
	s := strconv.FormatFloat(sec, 'f', -1, 64)
	return s
}

// Decode parses the trace file format from r. A malformed record returns a
// fatal, diagnostic error; no partial recovery is attempted (spec §4.1
// "Failure semantics").
func Decode(r io.Reader) ([]script.Script, error) {
	lr := newLineReader(r)

	numConn, err := lr.nextInt()
	if err != nil {
		return nil, errors.Wrap(err, "reading connection count")
	}

	scripts := make([]script.Script, 0, numConn)
	for i := 0; i < numConn; i++ {
		s, err := decodeConnection(lr)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding connection %d", i)
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

func decodeConnection(lr *lineReader) (script.Script, error) {
	var s script.Script

	id, start, err := lr.nextConnID()
	if err != nil {
		return s, errors.Wrap(err, "reading connection id")
	}
	s.ID = id
	s.StartTime = start

	clientPackets, err := lr.nextPacketList()
	if err != nil {
		return s, errors.Wrap(err, "reading client packets")
	}
	s.ClientPackets = clientPackets

	reqCounts, err := lr.nextIntList()
	if err != nil {
		return s, errors.Wrap(err, "reading request burst counts")
	}
	s.ReqCounts = reqCounts

	expFromServer, err := lr.nextUint64List()
	if err != nil {
		return s, errors.Wrap(err, "reading expected bytes from server")
	}
	s.ExpBytesFromServer = expFromServer

	serverPackets, err := lr.nextPacketList()
	if err != nil {
		return s, errors.Wrap(err, "reading server packets")
	}
	s.ServerPackets = serverPackets

	repCounts, err := lr.nextIntList()
	if err != nil {
		return s, errors.Wrap(err, "reading reply burst counts")
	}
	s.RepCounts = repCounts

	expFromClient, err := lr.nextUint64List()
	if err != nil {
		return s, errors.Wrap(err, "reading expected bytes from client")
	}
	s.ExpBytesFromClient = expFromClient

	return s, nil
}

// lineReader yields non-blank, non-comment lines with a running line number
// for diagnostics, mirroring the ns-3 original's CheckRegex skip-comments
// behavior.
type lineReader struct {
	sc     *bufio.Scanner
	lineNo int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{sc: bufio.NewScanner(r)}
}

func (lr *lineReader) next() (string, error) {
	for lr.sc.Scan() {
		lr.lineNo++
		line := lr.sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return line, nil
	}
	if err := lr.sc.Err(); err != nil {
		return "", err
	}
	return "", io.ErrUnexpectedEOF
}

func (lr *lineReader) nextMatching(re *regexp.Regexp, what string) (string, error) {
	line, err := lr.next()
	if err != nil {
		return "", errors.Wrapf(err, "line %d: expected %s, hit end of input", lr.lineNo, what)
	}
	if !re.MatchString(line) {
		return "", errors.Errorf("line %d: trace file is corrupted: expected %s, got %q", lr.lineNo, what, line)
	}
	return line, nil
}

func (lr *lineReader) nextInt() (int, error) {
	line, err := lr.nextMatching(intLinePattern, "a non-negative integer")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(line)
}

func (lr *lineReader) nextUint64() (uint64, error) {
	line, err := lr.nextMatching(intLinePattern, "a non-negative integer")
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(line, 10, 64)
}

func (lr *lineReader) nextIntList() ([]int, error) {
	n, err := lr.nextInt()
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		v, err := lr.nextInt()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (lr *lineReader) nextUint64List() ([]uint64, error) {
	n, err := lr.nextInt()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		v, err := lr.nextUint64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (lr *lineReader) nextConnID() (script.ConnID, time.Duration, error) {
	line, err := lr.nextMatching(idLinePattern, "a connection identity line")
	if err != nil {
		return script.ConnID{}, 0, err
	}
	fields := strings.Split(line, "\t")
	if len(fields) != 5 {
		return script.ConnID{}, 0, errors.Errorf("line %d: expected 5 tab-separated fields, got %d", lr.lineNo, len(fields))
	}

	clientIP := parseAddr(fields[0])
	clientPort, err := strconv.Atoi(fields[1])
	if err != nil {
		return script.ConnID{}, 0, errors.Wrapf(err, "line %d: bad client port", lr.lineNo)
	}
	serverIP := parseAddr(fields[2])
	serverPort, err := strconv.Atoi(fields[3])
	if err != nil {
		return script.ConnID{}, 0, errors.Wrapf(err, "line %d: bad server port", lr.lineNo)
	}
	startSec, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return script.ConnID{}, 0, errors.Wrapf(err, "line %d: bad start time", lr.lineNo)
	}

	id := script.ConnID{
		ClientIP:   clientIP,
		ClientPort: clientPort,
		ServerIP:   serverIP,
		ServerPort: serverPort,
	}
	return id, secondsToDuration(startSec), nil
}

func (lr *lineReader) nextPacketList() ([]pktdesc.Packet, error) {
	n, err := lr.nextInt()
	if err != nil {
		return nil, err
	}
	out := make([]pktdesc.Packet, n)
	for i := range out {
		p, err := lr.nextPacket()
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (lr *lineReader) nextPacket() (pktdesc.Packet, error) {
	line, err := lr.nextMatching(pktLinePattern, "a packet descriptor line")
	if err != nil {
		return pktdesc.Packet{}, err
	}
	fields := strings.Split(line, "\t")
	size, err := strconv.Atoi(fields[0])
	if err != nil {
		return pktdesc.Packet{}, errors.Wrapf(err, "line %d: bad packet size", lr.lineNo)
	}
	delaySec, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return pktdesc.Packet{}, errors.Wrapf(err, "line %d: bad packet delay", lr.lineNo)
	}

	p := pktdesc.New(size).WithDelay(secondsToDuration(delaySec))
	if p.Delay > 0 {
		n, err := lr.nextInt()
		if err != nil {
			return pktdesc.Packet{}, errors.Wrap(err, "reading parallel snapshot count")
		}
		for i := 0; i < n; i++ {
			parLine, err := lr.nextMatching(parLinePattern, "a parallel snapshot entry")
			if err != nil {
				return pktdesc.Packet{}, err
			}
			parts := strings.Split(parLine, "\t")
			clientPort, _ := strconv.Atoi(parts[0])
			serverPort, _ := strconv.Atoi(parts[1])
			threshold, _ := strconv.ParseUint(parts[2], 10, 64)
			p.AddPrecondition(clientPort, serverPort, threshold)
		}
	}
	return p, nil
}

func parseAddr(s string) net.IP {
	if ip := net.ParseIP(s); ip != nil {
		return ip
	}
	// Not a parseable address (malformed input): the field decodes to a nil
	// IP and its text is not kept.
	return net.IP(nil)
}

// IsIPv4 reports whether s matches the spec's IPv4 regex
// (`^\d+\.\d+\.\d+\.\d+$`); anything else is treated as IPv6, per spec §6.
func IsIPv4(s string) bool {
	return ipv4Pattern.MatchString(s)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
