// Package cloudapi contains the client and configuration for the
// browser grid provider's REST API, which tracks every remote session
// as a "job" that can be queried for health and updated with a verdict.
package cloudapi

import (
	"encoding/json"
	"time"

	"github.com/mstoykov/envconfig"
	"gopkg.in/guregu/null.v3"

	"github.com/gridrun/gridrun/lib/types"
)

// Config holds the credentials and endpoints for the grid provider.
type Config struct {
	Username  null.String `json:"username" envconfig:"GRIDRUN_USERNAME"`
	AccessKey null.String `json:"accessKey" envconfig:"GRIDRUN_ACCESS_KEY"`

	// Host is the REST API endpoint; WDHost is the WebDriver endpoint
	// sessions are created against.
	Host      null.String `json:"host" envconfig:"GRIDRUN_HOST"`
	WDHost    null.String `json:"wdHost" envconfig:"GRIDRUN_WD_HOST"`
	WebAppURL null.String `json:"webAppURL" envconfig:"GRIDRUN_WEB_APP_URL"`

	Timeout types.NullDuration `json:"timeout" envconfig:"GRIDRUN_TIMEOUT"`

	// Build and TunnelID are folded into every platform's capabilities;
	// CI systems usually provide them through the environment.
	Build    null.String `json:"build" envconfig:"GRIDRUN_BUILD"`
	TunnelID null.String `json:"tunnelId" envconfig:"GRIDRUN_TUNNEL_ID"`
}

// NewConfig creates a new Config instance with default values for some fields.
func NewConfig() Config {
	return Config{
		Host:      null.NewString("https://api.gridrun.io/v1", false),
		WDHost:    null.NewString("https://ondemand.gridrun.io/wd/hub", false),
		WebAppURL: null.NewString("https://app.gridrun.io", false),
		Timeout:   types.NewNullDuration(1*time.Minute, false),
	}
}

// Apply saves config non-zero config values from the passed config in the receiver.
func (c Config) Apply(cfg Config) Config {
	if cfg.Username.Valid && cfg.Username.String != "" {
		c.Username = cfg.Username
	}
	if cfg.AccessKey.Valid && cfg.AccessKey.String != "" {
		c.AccessKey = cfg.AccessKey
	}
	if cfg.Host.Valid && cfg.Host.String != "" {
		c.Host = cfg.Host
	}
	if cfg.WDHost.Valid && cfg.WDHost.String != "" {
		c.WDHost = cfg.WDHost
	}
	if cfg.WebAppURL.Valid {
		c.WebAppURL = cfg.WebAppURL
	}
	if cfg.Timeout.Valid {
		c.Timeout = cfg.Timeout
	}
	if cfg.Build.Valid {
		c.Build = cfg.Build
	}
	if cfg.TunnelID.Valid {
		c.TunnelID = cfg.TunnelID
	}
	return c
}

// GetConsolidatedConfig combines the default config values with the JSON
// config values and environment variables and returns the final result.
func GetConsolidatedConfig(jsonRawConf json.RawMessage, env map[string]string) (Config, error) {
	result := NewConfig()

	if jsonRawConf != nil {
		jsonConf := Config{}
		if err := json.Unmarshal(jsonRawConf, &jsonConf); err != nil {
			return result, err
		}
		result = result.Apply(jsonConf)
	}

	envConfig := Config{}
	if err := envconfig.Process("", &envConfig, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}); err != nil {
		return result, err
	}
	result = result.Apply(envConfig)

	return result, nil
}

// URLForJob returns the web app URL with the job's details page.
func URLForJob(jobID string, config Config) string {
	return config.WebAppURL.String + "/jobs/" + jobID
}
