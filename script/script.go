// Package script defines the connection script: the normalized,
// deterministic description of one captured TCP connection that the
// extractor produces and the replay engine consumes (spec §3).
package script

import (
	"fmt"
	"net"
	"time"

	"github.com/traceroam/tracereplay/pktdesc"
)

// ConnID is a connection's four-tuple identity. Comparison is lexicographic
// over (ClientIP, ClientPort, ServerIP, ServerPort); the reversed tuple
// denotes the same connection seen from the opposite direction.
type ConnID struct {
	ClientIP   net.IP
	ClientPort int
	ServerIP   net.IP
	ServerPort int
}

// Reversed returns the same connection as seen from the other side.
func (id ConnID) Reversed() ConnID {
	return ConnID{
		ClientIP:   id.ServerIP,
		ClientPort: id.ServerPort,
		ServerIP:   id.ClientIP,
		ServerPort: id.ClientPort,
	}
}

// Less gives ConnID a total order, used to make extraction output
// deterministic regardless of Go's randomized map iteration.
func (id ConnID) Less(other ConnID) bool {
	if c := compareIP(id.ClientIP, other.ClientIP); c != 0 {
		return c < 0
	}
	if id.ClientPort != other.ClientPort {
		return id.ClientPort < other.ClientPort
	}
	if c := compareIP(id.ServerIP, other.ServerIP); c != 0 {
		return c < 0
	}
	return id.ServerPort < other.ServerPort
}

// String renders the connection identity as client->server, the form used in
// diagnostics and log correlation.
func (id ConnID) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", id.ClientIP, id.ClientPort, id.ServerIP, id.ServerPort)
}

func compareIP(a, b net.IP) int {
	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// Script is the immutable, deterministic description of one captured
// connection produced by the extractor (spec §3 "Connection script").
//
// Invariants (not enforced by this type):
//   - sum(ReqCounts) == len(ClientPackets); sum(RepCounts) == len(ServerPackets)
//   - len(ReqCounts) and len(RepCounts) differ by at most one
//   - bursts strictly alternate, starting on the first non-empty side
//
// extract.Validate checks the first two; the third is not checked there.
type Script struct {
	ID        ConnID
	StartTime time.Duration // absolute simulation time, as an offset from t=0

	ClientPackets []pktdesc.Packet
	ServerPackets []pktdesc.Packet

	// ReqCounts[k] = number of client packets comprising the k-th client burst.
	ReqCounts []int
	// RepCounts[k] = number of server packets comprising the k-th server burst.
	RepCounts []int

	// ExpBytesFromServer[k] = total bytes the client expects to receive
	// between its k-th and (k+1)-th burst.
	ExpBytesFromServer []uint64
	// ExpBytesFromClient[k] = symmetric, for the server.
	ExpBytesFromClient []uint64
}
