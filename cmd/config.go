package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/gridrun/gridrun/errext"
	"github.com/gridrun/gridrun/errext/exitcodes"
	"github.com/gridrun/gridrun/lib"
)

// Config wraps the suite options with everything that can only come
// from the CLI or the on-disk config file, most notably the grid
// provider credentials.
type Config struct {
	lib.Options

	// Grid is kept as raw JSON so that writing the config file back
	// only touches what the user actually stored there.
	Grid json.RawMessage `json:"grid,omitempty" yaml:"-"`
}

// Apply overlays the valid fields of cfg on c and returns the result.
func (c Config) Apply(cfg Config) Config {
	c.Options = c.Options.Apply(cfg.Options)
	if len(cfg.Grid) > 0 {
		c.Grid = cfg.Grid
	}
	return c
}

// Gets configuration from CLI flags.
func getConfig(flags *pflag.FlagSet) Config {
	return Config{
		Options: lib.Options{
			BaseName:           getNullString(flags, "base-name"),
			Parallel:           getNullBool(flags, "parallel"),
			ZeroAssertionsPass: getNullBool(flags, "zero-assertions-pass"),
			PollInterval:       getNullDuration(flags, "poll-interval"),
			StaleRetryLimit:    getNullInt64(flags, "stale-retry-limit"),
		},
	}
}

// Reads the configuration file from the supplied fs and returns its
// contents. A missing file is not an error, unless its path was
// explicitly specified.
func readDiskConfig(gs *globalState) (Config, error) {
	realConfigFilePath := gs.flags.configFilePath
	if realConfigFilePath == "" {
		realConfigFilePath = gs.defaultFlags.configFilePath
	}

	data, err := afero.ReadFile(gs.fs, realConfigFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			if gs.flags.configFilePath == gs.defaultFlags.configFilePath {
				return Config{}, nil
			}
			return Config{}, fmt.Errorf("could not read config file %s: %w", realConfigFilePath, err)
		}
		return Config{}, err
	}

	var conf Config
	if err := json.Unmarshal(data, &conf); err != nil {
		return conf, fmt.Errorf("could not parse config file %s: %w", realConfigFilePath, err)
	}
	return conf, nil
}

// Serializes the configuration to a JSON file.
func writeDiskConfig(gs *globalState, conf Config) error {
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return err
	}

	realConfigFilePath := gs.flags.configFilePath
	if realConfigFilePath == "" {
		realConfigFilePath = gs.defaultFlags.configFilePath
	}

	if err := gs.fs.MkdirAll(filepath.Dir(realConfigFilePath), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(gs.fs, realConfigFilePath, data, 0o644)
}

// Reads configuration variables from the environment.
func readEnvConfig(envVars map[string]string) (Config, error) {
	conf := Config{}
	err := envconfig.Process("", &conf, func(key string) (string, bool) {
		v, ok := envVars[key]
		return v, ok
	})
	return conf, err
}

// getConsolidatedConfig applies the configuration from the different
// sources in the hierarchy of precedence, from lowest to highest:
// defaults, the on-disk config file, the suite file, environment
// variables and CLI flags.
func getConsolidatedConfig(gs *globalState, cliConf, suiteConf Config) (Config, error) {
	fileConf, err := readDiskConfig(gs)
	if err != nil {
		return Config{}, err
	}
	envConf, err := readEnvConfig(gs.envVars)
	if err != nil {
		return Config{}, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	conf := Config{Options: lib.DefaultOptions()}.
		Apply(fileConf).Apply(suiteConf).Apply(envConf).Apply(cliConf)

	if err := validateConfig(conf); err != nil {
		return conf, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	return conf, nil
}

func validateConfig(conf Config) error {
	if err := conf.Options.Validate(); err != nil {
		return err
	}
	if conf.PollInterval.TimeDuration() <= 0 {
		return errors.New("the poll interval must be positive")
	}
	if conf.StaleRetryLimit.Int64 < 0 {
		return errors.New("the stale retry limit can't be negative")
	}
	return nil
}
