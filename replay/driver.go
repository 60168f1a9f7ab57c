package replay

import (
	"context"
	"time"

	"github.com/traceroam/tracereplay/printer"
	"github.com/traceroam/tracereplay/script"
	"github.com/traceroam/tracereplay/simkernel"
)

// Driver replays a connection script's client side: it actively connects,
// then sends its first burst immediately (spec §4.4 "Driver").
type Driver struct {
	m         *burstMachine
	peer      simkernel.Address
	startAt   time.Duration
}

// NewDriver builds a driver for sc, bound to sock (not yet connected). jitter
// is an extra, caller-supplied offset added to the script's recorded start
// time, used to decorrelate many drivers sharing one script (spec §6
// "seeded jitter").
func NewDriver(sc script.Script, sock simkernel.Socket, sched simkernel.Scheduler, cfg Config, peer simkernel.Address, jitter time.Duration) *Driver {
	m := newBurstMachine(sc.ID, sock, sched, cfg, sc.ClientPackets, sc.ReqCounts, sc.ExpBytesFromServer)
	return &Driver{
		m:       m,
		peer:    peer,
		startAt: sc.StartTime + cfg.StartTimeOffset + jitter,
	}
}

// Start schedules the connection attempt at the driver's configured start
// time.
func (d *Driver) Start() {
	d.m.sched.ScheduleAt(d.startAt, d.connect)
}

func (d *Driver) connect() {
	if err := d.m.sock.Connect(context.Background(), d.peer); err != nil {
		printer.Warningf("replay: %s [%s]: connect to %s failed: %v", d.m.id, d.m.runID, d.peer, err)
		d.m.state = stateClosed
		return
	}
	d.m.enterSending()
}

// ID reports the connection identity this driver replays.
func (d *Driver) ID() script.ConnID { return d.m.id }

// TotalBytesSeen reports bytes sent plus bytes received so far, the
// replay's byte-accounting report figure.
func (d *Driver) TotalBytesSeen() uint64 { return d.m.TotalBytesSeen() }

// bytesSent reports only bytes sent so far, used by connTotal to gate
// sibling connections' parallel-connection preconditions.
func (d *Driver) bytesSent() uint64 { return d.m.bytesSent() }

// SetSiblings wires the shared registry of sibling connections.
func (d *Driver) SetSiblings(s siblingSet) { d.m.SetSiblings(s) }

// SetOnClosed registers a callback invoked once this driver's connection
// closes, used by the run harness to track overall completion.
func (d *Driver) SetOnClosed(fn func()) { d.m.onClosed = fn }
