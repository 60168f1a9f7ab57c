// Package configure implements the "tracereplay configure" subcommand:
// interactively set the persisted engine defaults consulted by "tracereplay
// replay" whenever a flag is left unset.
package configure

import (
	"fmt"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/traceroam/tracereplay/cfg"
)

var Cmd = &cobra.Command{
	Use:   "configure",
	Short: "Set persisted replay engine defaults.",
	Long: "Prompts for the default data rate, start port, and jitter seed used by " +
		"'tracereplay replay' when its flags are left unset. Stored in " + cfg.DefaultsConfigPath(),
	SilenceUsage: true,
	Args:         cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ans := struct {
			DataRate   string
			StartPort  string
			JitterSeed string
		}{
			DataRate:   strconv.FormatFloat(cfg.DataRate(), 'f', -1, 64),
			StartPort:  strconv.Itoa(cfg.StartPort()),
			JitterSeed: strconv.FormatInt(cfg.JitterSeed(), 10),
		}

		qs := []*survey.Question{
			{
				Name:   "DataRate",
				Prompt: &survey.Input{Message: "Default data rate (bytes/second):", Default: ans.DataRate},
			},
			{
				Name:   "StartPort",
				Prompt: &survey.Input{Message: "Default start port:", Default: ans.StartPort},
			},
			{
				Name:   "JitterSeed",
				Prompt: &survey.Input{Message: "Default jitter seed:", Default: ans.JitterSeed},
			},
		}
		if err := survey.Ask(qs, &ans); err != nil {
			return errors.Wrap(err, "failed to read engine defaults")
		}

		dataRate, err := strconv.ParseFloat(ans.DataRate, 64)
		if err != nil {
			return errors.Wrap(err, "data rate must be a number")
		}
		startPort, err := strconv.Atoi(ans.StartPort)
		if err != nil {
			return errors.Wrap(err, "start port must be an integer")
		}
		jitterSeed, err := strconv.ParseInt(ans.JitterSeed, 10, 64)
		if err != nil {
			return errors.Wrap(err, "jitter seed must be an integer")
		}

		if err := cfg.SetDefaults(dataRate, startPort, jitterSeed); err != nil {
			return errors.Wrap(err, "failed to save engine defaults")
		}

		fmt.Println("Engine defaults stored in", cfg.DefaultsConfigPath())
		return nil
	},
}
