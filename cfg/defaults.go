package cfg

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Engine defaults persisted across invocations, so a user who always
// replays against the same data rate or start port doesn't have to repeat
// the flag every time (spec §6 "Engine configuration options").
var defaults = viper.New()

const defaultsFileName = "defaults"

func init() {
	defaults.SetConfigType("yaml")
	defaults.AddConfigPath(cfgDir)
	defaults.SetConfigName(defaultsFileName)
	defaults.SetDefault("data-rate", float64(1_000_000)) // bytes/second
	defaults.SetDefault("start-port", 10000)
	defaults.SetDefault("jitter-seed", int64(1))

	// A missing defaults file just means the compiled-in defaults above
	// apply; any other read error is not fatal to construction either, since
	// every value already has a SetDefault fallback.
	_ = defaults.ReadInConfig()
}

// DefaultsConfigPath returns the path engine defaults are persisted to.
func DefaultsConfigPath() string {
	return filepath.Join(cfgDir, defaultsFileName+".yaml")
}

// DataRate returns the persisted default replay data rate, in bytes/second.
func DataRate() float64 { return defaults.GetFloat64("data-rate") }

// StartPort returns the persisted base port placed in the replay engine's
// configuration.
func StartPort() int { return defaults.GetInt("start-port") }

// JitterSeed returns the persisted seed for per-connection start-time
// jitter.
func JitterSeed() int64 { return defaults.GetInt64("jitter-seed") }

// SetDefaults writes new persisted defaults, creating the config file if
// it doesn't already exist.
func SetDefaults(dataRate float64, startPort int, jitterSeed int64) error {
	path := DefaultsConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s", path)
		}
		f.Close()
	} else if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	defaults.Set("data-rate", dataRate)
	defaults.Set("start-port", startPort)
	defaults.Set("jitter-seed", jitterSeed)
	return defaults.WriteConfig()
}
