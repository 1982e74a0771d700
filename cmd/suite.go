package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// loadSuiteConfig reads the suite file naming the test pages and the
// platform matrix. YAML is the documented format; JSON files are
// accepted as well since every JSON suite is also valid YAML, but the
// .json extension gets the stricter parser and its better errors.
func loadSuiteConfig(gs *globalState, filename string) (Config, error) {
	pwd, err := gs.getwd()
	if err != nil {
		return Config{}, err
	}
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(pwd, filename)
	}

	data, err := afero.ReadFile(gs.fs, filename)
	if err != nil {
		return Config{}, fmt.Errorf("could not read suite file %s: %w", filename, err)
	}

	if !strings.EqualFold(filepath.Ext(filename), ".json") {
		// The option types only implement JSON unmarshalling, so YAML
		// documents take a detour through their JSON representation.
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("could not parse suite file %s: %w", filename, err)
		}
		if data, err = json.Marshal(raw); err != nil {
			return Config{}, fmt.Errorf("could not parse suite file %s: %w", filename, err)
		}
	}

	var conf Config
	if err := json.Unmarshal(data, &conf); err != nil {
		return Config{}, fmt.Errorf("could not parse suite file %s: %w", filename, err)
	}
	return conf, nil
}
