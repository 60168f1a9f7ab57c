// Package replay implements the "tracereplay replay" subcommand: load a
// trace file and replay it as synthetic traffic against the bundled
// in-memory simulator kernel.
package replay

import (
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/traceroam/tracereplay/cfg"
	"github.com/traceroam/tracereplay/cmd/internal/cmderr"
	"github.com/traceroam/tracereplay/printer"
	replayengine "github.com/traceroam/tracereplay/replay"
	"github.com/traceroam/tracereplay/script"
	"github.com/traceroam/tracereplay/simkernel/fake"
	"github.com/traceroam/tracereplay/tracefmt"
)

var (
	clientCount int
	dataRate    float64
	stopTime    time.Duration
	startOffset time.Duration
	startPort   int
	jitterSeed  int64
)

var Cmd = &cobra.Command{
	Use:          "replay TRACE",
	Short:        "Replay a trace file as synthetic traffic.",
	Long:         "Loads connection scripts from a trace file and replays them against an in-memory discrete-event simulator, reporting byte accounting per connection.",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
	RunE:         run,
}

func init() {
	Cmd.Flags().IntVar(&clientCount, "clients", 1, "Number of simulated client nodes replaying this trace concurrently.")
	Cmd.Flags().Float64Var(&dataRate, "data-rate", 0, "Replay data rate in bytes/second (0 uses the persisted default).")
	Cmd.Flags().DurationVar(&stopTime, "stop-time", time.Hour, "Simulation time after which no further events are run.")
	Cmd.Flags().DurationVar(&startOffset, "start-offset", 0, "Offset added to every connection's captured start time.")
	Cmd.Flags().IntVar(&startPort, "start-port", 0, "Base port recorded in the engine configuration; connections listen on their captured server ports (0 uses the persisted default).")
	Cmd.Flags().Int64Var(&jitterSeed, "jitter-seed", 0, "Seed for per-connection start-time jitter (0 uses the persisted default).")
}

func run(cmd *cobra.Command, args []string) error {
	traceFile := args[0]
	scripts, err := tracefmt.ReadFile(afero.NewOsFs(), traceFile)
	if err != nil {
		return cmderr.FatalErr{Err: err}
	}
	if len(scripts) == 0 {
		printer.Warningf("trace file %s contains no connections\n", traceFile)
		return nil
	}

	rate := dataRate
	if rate == 0 {
		rate = cfg.DataRate()
	}
	base := startPort
	if base == 0 {
		base = cfg.StartPort()
	}
	seed := jitterSeed
	if seed == 0 {
		seed = cfg.JitterSeed()
	}

	if clientCount < 1 {
		clientCount = 1
	}

	sched := fake.NewScheduler(stopTime)
	network := fake.NetworkFactory{Network: fake.NewNetwork(sched)}

	engineCfg := replayengine.Config{
		DataRate:        rate,
		StopTime:        stopTime,
		StartTimeOffset: startOffset,
		StartPort:       base,
		JitterSeed:      seed,
	}

	var runs []*replayengine.Run
	for client := 0; client < clientCount; client++ {
		clientScripts := offsetPorts(scripts, client*len(scripts)*2)
		clientCfg := engineCfg
		clientCfg.JitterSeed = seed + int64(client)

		r := replayengine.NewRun(clientScripts, network, sched, clientCfg)
		if err := r.Start(); err != nil {
			return cmderr.FatalErr{Err: err}
		}
		runs = append(runs, r)
	}

	sched.Run()

	var connCount int
	var totalBytes uint64
	for _, r := range runs {
		for i, d := range r.Drivers {
			connCount++
			clientSeen := d.TotalBytesSeen()
			serverSeen := r.Responders[i].TotalBytesSeen()
			totalBytes += clientSeen
			printer.V(1).Infof("%s: client saw %d bytes (sent+received), server saw %d bytes\n", d.ID(), clientSeen, serverSeen)
		}
	}
	printer.Infof("replayed %d connection(s) across %d client(s), %d bytes total\n", connCount, clientCount, totalBytes)
	return nil
}

// offsetPorts returns a copy of scripts with every client and server port
// shifted by delta, so independent simulated clients replaying the same
// trace never collide on port numbers.
func offsetPorts(scripts []script.Script, delta int) []script.Script {
	out := make([]script.Script, len(scripts))
	for i, sc := range scripts {
		sc.ID.ClientPort += delta
		sc.ID.ServerPort += delta
		out[i] = sc
	}
	return out
}
