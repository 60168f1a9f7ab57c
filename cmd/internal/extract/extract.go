// Package extract implements the "tracereplay extract" subcommand: turn a
// packet capture into a trace file of connection scripts.
package extract

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/traceroam/tracereplay/cmd/internal/cmderr"
	"github.com/traceroam/tracereplay/extract"
	"github.com/traceroam/tracereplay/extract/pcapsniff"
	"github.com/traceroam/tracereplay/printer"
	"github.com/traceroam/tracereplay/tracefmt"
)

var traceFile string

var Cmd = &cobra.Command{
	Use:          "extract CAPTURE",
	Short:        "Extract connection scripts from a packet capture.",
	Long:         "Reads a pcap/pcapng capture, groups packets into connections, and writes a trace file of connection scripts usable by 'tracereplay replay'.",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
	RunE:         run,
}

func init() {
	Cmd.Flags().StringVar(&traceFile, "out", "trace.txt", "Path to write the extracted trace file to.")
}

func run(cmd *cobra.Command, args []string) error {
	dec := pcapsniff.Open(args[0])

	scripts, err := extract.Extract(dec)
	if err != nil {
		return cmderr.FatalErr{Err: err}
	}

	if err := extract.Validate(scripts); err != nil {
		printer.Warningf("extracted trace failed invariant validation: %v\n", err)
	}

	if err := tracefmt.WriteFile(afero.NewOsFs(), traceFile, scripts); err != nil {
		return cmderr.FatalErr{Err: err}
	}

	printer.Infof("extracted %d connection(s) to %s\n", len(scripts), traceFile)
	return nil
}
