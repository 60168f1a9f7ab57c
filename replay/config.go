package replay

import "time"

// Config carries the replay engine's configuration options (spec §6,
// "Engine configuration options"). One Config is shared by every
// driver/responder pair in a run.
type Config struct {
	// DataRate is the configured sending rate, in bytes/second, used to
	// compute buffer-drain waits.
	DataRate float64
	// StopTime is the absolute simulation time of the run's end. The
	// engine itself does not read it: the scheduler the run executes on
	// stops dispatching events at its own stop time, and endpoints still
	// open at that point are left as they are, not closed.
	StopTime time.Duration
	// StartTimeOffset is added to every connection's captured start time.
	StartTimeOffset time.Duration
	// StartPort is the configured base port. NewRun does not consult it:
	// each connection's responder listens on the script's own captured
	// server port.
	StartPort int
	// JitterSeed seeds the per-flow [0,1]s uniform jitter applied to start
	// times to decorrelate clients.
	JitterSeed int64
}
