// Package pktdesc defines the packet descriptor value object shared by the
// trace extractor and the replay engine: a captured packet's size, the
// application-level idle time before it was sent, and (for delayed packets
// only) the byte-progress precondition on sibling connections that the
// extractor observed at capture time.
package pktdesc

import "time"

// ParallelPrecondition records the byte threshold a sibling connection
// (identified by its own client/server port pair) had reached at the moment
// this packet was captured. Replay gates the send on the sibling having
// reached at least this many bytes.
type ParallelPrecondition struct {
	ClientPort   int
	ServerPort   int
	ByteThreshold uint64
}

// Packet is an immutable record of one captured TCP segment's replay
// behavior. Size must be >0. Delay of 0 means "send as soon as the previous
// packet in the burst has drained"; Delay > 0 carries the application/user
// think-time the extractor attributed to the preceding inter-packet gap.
type Packet struct {
	Size  int
	Delay time.Duration

	// preconditions is only ever non-empty when Delay > 0 (spec invariant).
	preconditions []ParallelPrecondition
}

// New builds a zero-delay packet descriptor of the given size.
func New(size int) Packet {
	return Packet{Size: size}
}

// WithDelay returns a copy of p with its Delay set. Packets are built
// incrementally by the extractor (size first, then delay, then any
// preconditions) before being frozen into a connection script.
func (p Packet) WithDelay(d time.Duration) Packet {
	p.Delay = d
	return p
}

// AddPrecondition appends a sibling byte-threshold precondition. Only
// meaningful when p.Delay > 0; callers must not call this on a zero-delay
// packet (the extractor enforces this, per the spec invariant that a
// zero-delay packet's precondition list is always empty).
func (p *Packet) AddPrecondition(clientPort, serverPort int, byteThreshold uint64) {
	p.preconditions = append(p.preconditions, ParallelPrecondition{
		ClientPort:    clientPort,
		ServerPort:    serverPort,
		ByteThreshold: byteThreshold,
	})
}

// Preconditions returns the packet's parallel-connection snapshot, in the
// order they were recorded. Callers must not mutate the returned slice.
func (p Packet) Preconditions() []ParallelPrecondition {
	return p.preconditions
}

// Equal reports whether p and o carry the same size, delay, and precondition
// snapshot, in order. Defined so go-cmp can compare Packets without reaching
// into the unexported preconditions field.
func (p Packet) Equal(o Packet) bool {
	if p.Size != o.Size || p.Delay != o.Delay || len(p.preconditions) != len(o.preconditions) {
		return false
	}
	for i, pc := range p.preconditions {
		if pc != o.preconditions[i] {
			return false
		}
	}
	return true
}

// Threshold looks up the byte threshold recorded for the sibling connection
// identified by (clientPort, serverPort). Returns 0 ("no precondition") if
// absent. O(n) over the precondition list, which the spec notes is short
// (typically <10 entries).
func (p Packet) Threshold(clientPort, serverPort int) uint64 {
	for _, pc := range p.preconditions {
		if pc.ClientPort == clientPort && pc.ServerPort == serverPort {
			return pc.ByteThreshold
		}
	}
	return 0
}
