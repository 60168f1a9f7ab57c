package fake

import (
	"bytes"
	"context"

	"github.com/pkg/errors"

	"github.com/traceroam/tracereplay/simkernel"
)

// DefaultBufferCapacity is the transmit-buffer size a Socket gets unless the
// harness configures a smaller one to exercise buffer-wait gating (spec
// §4.4 step 2).
const DefaultBufferCapacity = 1 << 24 // 16 MiB: large enough to rarely gate in tests that don't ask for it.

// Network is a shared in-memory switchboard: it tracks which address is
// listening so Connect can find its peer. One Network is shared by every
// socket in a single simulated run.
type Network struct {
	listeners map[string]*listenState
	sched     *Scheduler
}

type listenState struct {
	addr     simkernel.Address
	onAccept func(simkernel.Socket)
}

// NewNetwork returns an empty switchboard bound to sched, used to schedule
// buffer drain events.
func NewNetwork(sched *Scheduler) *Network {
	return &Network{listeners: map[string]*listenState{}, sched: sched}
}

// NewSocket returns an unconnected socket with the default transmit-buffer
// capacity.
func (n *Network) NewSocket() *Socket {
	return &Socket{network: n, capacity: DefaultBufferCapacity, inbox: &bytes.Buffer{}}
}

// NetworkFactory adapts a Network to replay.SocketFactory: Network.NewSocket
// returns the concrete *Socket type (so tests and harness code can still
// reach Drain/SetCapacity directly), while NetworkFactory's NewSocket
// widens that to the simkernel.Socket interface the replay engine expects.
type NetworkFactory struct {
	*Network
}

func (f NetworkFactory) NewSocket() simkernel.Socket {
	return f.Network.NewSocket()
}

// Socket is a loopback, in-memory implementation of simkernel.Socket: Write
// on one side appends directly to its peer's read buffer, and transmit
// capacity is modeled as an integer budget drained by scheduled events
// rather than real byte transfer timing.
type Socket struct {
	network *Network
	local   simkernel.Address
	remote  simkernel.Address
	peer    *Socket

	capacity    int
	used        int
	inbox       *bytes.Buffer
	closed      bool
	isListener  bool
	recvHandler func()
}

// SetCapacity overrides the default transmit-buffer size; call before
// Connect/Listen.
func (s *Socket) SetCapacity(n int) { s.capacity = n }

func (s *Socket) Connect(ctx context.Context, peer simkernel.Address) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	ls, ok := s.network.listeners[peer.String()]
	if !ok {
		return errors.Errorf("simkernel/fake: no listener at %s", peer)
	}

	remoteSocket := s.network.NewSocket()
	remoteSocket.local = peer
	remoteSocket.remote = s.local
	remoteSocket.peer = s

	s.remote = peer
	s.peer = remoteSocket

	ls.onAccept(remoteSocket)
	return nil
}

func (s *Socket) Listen(local simkernel.Address, onAccept func(simkernel.Socket)) error {
	key := local.String()
	if _, exists := s.network.listeners[key]; exists {
		return errors.Errorf("simkernel/fake: address %s already listening", local)
	}
	s.local = local
	s.isListener = true
	s.network.listeners[key] = &listenState{addr: local, onAccept: onAccept}
	return nil
}

func (s *Socket) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errors.New("simkernel/fake: write on closed socket")
	}
	if s.peer == nil {
		return 0, errors.New("simkernel/fake: write on unconnected socket")
	}
	n := len(p)
	s.used += n
	s.peer.inbox.Write(p)
	if s.peer.recvHandler != nil {
		s.peer.recvHandler()
	}
	return n, nil
}

func (s *Socket) Read(p []byte) (int, error) {
	if s.inbox.Len() == 0 {
		return 0, nil
	}
	return s.inbox.Read(p)
}

func (s *Socket) SetRecvHandler(fn func()) { s.recvHandler = fn }

// Drain frees n bytes of outstanding transmit-buffer occupancy; the replay
// engine schedules this via the Scheduler after time_to_drain(size) elapses
// (spec §4.4 step 2).
func (s *Socket) Drain(n int) {
	s.used -= n
	if s.used < 0 {
		s.used = 0
	}
}

func (s *Socket) FreeBufferSpace() int { return s.capacity - s.used }

func (s *Socket) LocalAddr() simkernel.Address  { return s.local }
func (s *Socket) RemoteAddr() simkernel.Address { return s.remote }

func (s *Socket) Close() error {
	s.closed = true
	if s.isListener {
		delete(s.network.listeners, s.local.String())
	}
	return nil
}
