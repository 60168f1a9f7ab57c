// Package cmd wires the tracereplay CLI's subcommands together.
package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/traceroam/tracereplay/cmd/internal/cmderr"
	configurecmd "github.com/traceroam/tracereplay/cmd/internal/configure"
	extractcmd "github.com/traceroam/tracereplay/cmd/internal/extract"
	replaycmd "github.com/traceroam/tracereplay/cmd/internal/replay"
	"github.com/traceroam/tracereplay/printer"
	"github.com/traceroam/tracereplay/util"
	"github.com/traceroam/tracereplay/version"
)

var debugFlag bool
var jsonFlag bool

var rootCmd = &cobra.Command{
	Use:           "tracereplay",
	Short:         "Replay captured packet traces as synthetic traffic in a network simulator.",
	Long:          "tracereplay extracts connection-level scripts from a packet capture and replays them as synthetic traffic against a discrete-event network simulator.",
	Version:       version.CLIDisplayString(),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI, printing any error and setting the process exit
// code before returning.
func Execute() {
	if cmd, err := rootCmd.ExecuteC(); err != nil {
		if _, isFatal := err.(cmderr.FatalErr); !isFatal {
			cmd.Println(cmd.UsageString())
		}

		exitCode := 1
		var exitErr util.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode
		}
		printer.Stderr.Errorf("%s\n", err)
		os.Exit(exitCode)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Output detailed information for debugging.")
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase logging verbosity; repeatable.")
	viper.BindPFlag("verbose-level", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Emit log output as JSON lines instead of colored text.")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if jsonFlag {
			printer.SwitchToJSON()
		}
	}

	rootCmd.AddCommand(extractcmd.Cmd)
	rootCmd.AddCommand(replaycmd.Cmd)
	rootCmd.AddCommand(configurecmd.Cmd)
}
