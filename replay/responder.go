package replay

import (
	"github.com/traceroam/tracereplay/script"
	"github.com/traceroam/tracereplay/simkernel"
)

// Responder replays a connection script's server side: it listens, and on
// accepting a connection either waits for the recorded number of bytes from
// the client or, if the trace shows the server speaking first, starts
// sending immediately (spec §4.5 "Responder").
type Responder struct {
	m     *burstMachine
	local simkernel.Address

	listenSock simkernel.Socket
}

// NewResponder builds a responder for sc, bound to listenSock (not yet
// listening). The data socket handed to onAccept by the network becomes the
// socket of this responder's burst machine once the connection arrives.
func NewResponder(sc script.Script, listenSock simkernel.Socket, sched simkernel.Scheduler, cfg Config, local simkernel.Address) *Responder {
	return &Responder{
		local:      local,
		listenSock: listenSock,
		m:          newBurstMachine(sc.ID, nil, sched, cfg, sc.ServerPackets, sc.RepCounts, sc.ExpBytesFromClient),
	}
}

// Start binds the listening socket; onAccept wires the freshly accepted
// data socket into this responder's burst machine and bootstraps it.
func (r *Responder) Start() error {
	return r.listenSock.Listen(r.local, r.onAccept)
}

func (r *Responder) onAccept(conn simkernel.Socket) {
	r.m.sock = conn
	conn.SetRecvHandler(r.m.onDataAvailable)
	r.m.bootstrap()
}

// ID reports the connection identity this responder replays.
func (r *Responder) ID() script.ConnID { return r.m.id }

// TotalBytesSeen reports bytes sent plus bytes received so far, the
// replay's byte-accounting report figure.
func (r *Responder) TotalBytesSeen() uint64 { return r.m.TotalBytesSeen() }

// bytesSent reports only bytes sent so far, used by connTotal to gate
// sibling connections' parallel-connection preconditions.
func (r *Responder) bytesSent() uint64 { return r.m.bytesSent() }

// SetSiblings wires the shared registry of sibling connections.
func (r *Responder) SetSiblings(s siblingSet) { r.m.SetSiblings(s) }

// SetOnClosed registers a callback invoked once this responder's connection
// closes.
func (r *Responder) SetOnClosed(fn func()) { r.m.onClosed = fn }
