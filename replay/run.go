package replay

import (
	"math/rand"
	"time"

	"github.com/traceroam/tracereplay/script"
	"github.com/traceroam/tracereplay/simkernel"
)

// SocketFactory mints fresh, unconnected sockets bound to the simulator
// kernel a run executes against.
type SocketFactory interface {
	NewSocket() simkernel.Socket
}

// Run is one replay execution: every connection script gets a responder
// (bound first, so it's listening before any driver can connect) and a
// driver, sharing a single Registry for parallel-connection preconditions.
type Run struct {
	Registry   *Registry
	Drivers    []*Driver
	Responders []*Responder
}

// NewRun builds, but does not start, a driver/responder pair for every
// script, using factory to mint their sockets and jitterSeed to
// decorrelate driver start times across connections that share a script
// (spec §6 "seeded jitter").
func NewRun(scripts []script.Script, factory SocketFactory, sched simkernel.Scheduler, cfg Config) *Run {
	reg := NewRegistry()
	run := &Run{Registry: reg}

	for i, sc := range scripts {
		serverAddr := simkernel.Address{IP: sc.ID.ServerIP, Port: sc.ID.ServerPort}

		responder := NewResponder(sc, factory.NewSocket(), sched, cfg, serverAddr)
		driver := NewDriver(sc, factory.NewSocket(), sched, cfg, serverAddr, jitterFor(cfg.JitterSeed, i))

		responder.SetSiblings(reg)
		driver.SetSiblings(reg)
		reg.Register(sc.ID.ClientPort, sc.ID.ServerPort, connTotal{driver, responder})

		run.Responders = append(run.Responders, responder)
		run.Drivers = append(run.Drivers, driver)
	}
	return run
}

// connTotal reports the combined bytes sent by both sides of a connection,
// counting each byte transferred exactly once, matching how the extractor
// snapshotted a sibling's total_bytes at capture time: the sum of everything
// sent on the sibling so far, in either direction. This is deliberately
// bytesSent(), not the sent+received TotalBytesSeen() the public API
// reports: since every byte one side sends is a byte the other side
// receives, summing TotalBytesSeen() on both sides would double-count the
// connection's actual transfer total.
type connTotal struct {
	driver    *Driver
	responder *Responder
}

func (c connTotal) TotalBytesSeen() uint64 {
	return c.driver.bytesSent() + c.responder.bytesSent()
}

// jitterFor derives a deterministic, reproducible [0,1)s jitter for the
// i-th connection from seed, so repeated runs with the same seed produce
// the same decorrelated start times.
func jitterFor(seed int64, i int) time.Duration {
	r := rand.New(rand.NewSource(seed + int64(i)))
	return time.Duration(r.Float64() * float64(time.Second))
}

// Start binds every responder and schedules every driver's connection
// attempt. Responders must bind before any driver runs, so this starts all
// responders first regardless of scheduling order.
func (run *Run) Start() error {
	for _, r := range run.Responders {
		if err := r.Start(); err != nil {
			return err
		}
	}
	for _, d := range run.Drivers {
		d.Start()
	}
	return nil
}
