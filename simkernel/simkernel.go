// Package simkernel defines the contract the replay engine expects from a
// host network simulator: a virtual clock, a cooperative single-threaded
// event scheduler, and TCP-like sockets bound to addresses. The simulator
// kernel itself — its event queue, topology, and physical layer — is an
// external collaborator and out of scope here; this package only names what
// the replay engine consumes from it (the same split the teacher's
// pcap.clockWrapper draws between "the real clock" and "a clock a test can
// control").
package simkernel

import (
	"context"
	"net"
	"time"
)

// Clock reports the simulator's current virtual time.
type Clock interface {
	Now() time.Duration
}

// Scheduler is the cooperative event queue every endpoint suspends into.
// "Suspension" means calling Schedule and returning; the scheduled function
// runs only when the virtual clock reaches its time, and only one function
// ever runs at a time — no locking is required across scheduled callbacks.
type Scheduler interface {
	Clock

	// Schedule runs fn once the clock has advanced by delay from now.
	Schedule(delay time.Duration, fn func())

	// ScheduleAt runs fn once the clock reaches the absolute time at.
	ScheduleAt(at time.Duration, fn func())
}

// Address identifies a simulated TCP endpoint.
type Address struct {
	IP   net.IP
	Port int
}

func (a Address) String() string {
	return net.JoinHostPort(a.IP.String(), itoa(a.Port))
}

func itoa(port int) string {
	if port == 0 {
		return "0"
	}
	neg := port < 0
	if neg {
		port = -port
	}
	var buf [8]byte
	i := len(buf)
	for port > 0 {
		i--
		buf[i] = byte('0' + port%10)
		port /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Socket is the minimal TCP-like primitive the replay engine needs: connect,
// listen, stream bytes, and report outstanding transmit-buffer occupancy so
// the engine can model a finite send buffer under a configured data rate
// (spec §4.4 step 2, "attempt_send"). There is no blocking Accept: a
// cooperative, event-driven responder reacts to incoming connections
// through a registered callback instead, matching spec §5's rule that no
// operation blocks synchronously.
type Socket interface {
	// Connect actively opens a connection to peer. Returns an error if the
	// peer isn't listening; the driver logs this and closes rather than
	// retrying (spec §4.4 "CONNECTING").
	Connect(ctx context.Context, peer Address) error

	// Listen binds to local and registers onAccept to be invoked with a
	// freshly accepted data socket each time a peer connects (spec §4.5
	// "On start: bind and listen").
	Listen(local Address, onAccept func(Socket)) error

	// Write enqueues len(p) bytes for transmission, occupying that many
	// bytes of the socket's transmit buffer until the simulator drains them.
	Write(p []byte) (int, error)

	// Read drains bytes the peer has sent; it never blocks — 0 bytes and a
	// nil error means "nothing available yet".
	Read(p []byte) (int, error)

	// SetRecvHandler registers fn to be invoked whenever the peer writes
	// new bytes, the simulator's equivalent of ns-3's SetRecvCallback. A
	// RECEIVING endpoint uses this instead of polling.
	SetRecvHandler(fn func())

	// FreeBufferSpace reports how many bytes of transmit buffer remain
	// before Write would have to wait for a drain.
	FreeBufferSpace() int

	LocalAddr() Address
	RemoteAddr() Address

	Close() error
}
