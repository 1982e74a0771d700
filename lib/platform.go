// Package lib contains the data model shared between the CLI, the
// remote-browser clients and the test runner.
package lib

import (
	"strings"
	"time"
)

// Capabilities is the free-form capability mapping sent to the remote
// browser grid when a session is created.
type Capabilities map[string]interface{}

// Platform describes one browser/OS/device combination a test suite
// should run under. All fields are optional; the grid picks defaults
// for anything left empty.
type Platform struct {
	DeviceName      string `json:"deviceName,omitempty" yaml:"deviceName,omitempty"`
	Platform        string `json:"platform,omitempty" yaml:"platform,omitempty"`
	PlatformName    string `json:"platformName,omitempty" yaml:"platformName,omitempty"`
	PlatformVersion string `json:"platformVersion,omitempty" yaml:"platformVersion,omitempty"`
	BrowserName     string `json:"browserName,omitempty" yaml:"browserName,omitempty"`
	Version         string `json:"version,omitempty" yaml:"version,omitempty"`

	// Per-run timeouts, in seconds on the wire. Zero values fall back
	// to the run defaults.
	MaxDuration    int `json:"maxDuration,omitempty" yaml:"maxDuration,omitempty"`
	CommandTimeout int `json:"commandTimeout,omitempty" yaml:"commandTimeout,omitempty"`
	IdleTimeout    int `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`

	// Extra capabilities passed through to the grid untouched.
	Extra map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// DisplayName derives the human-readable name for a test job on this
// platform. Present descriptor fields are concatenated in a fixed order,
// absent ones contribute nothing, and the base suite name is appended
// at the end.
func (p Platform) DisplayName(base string) string {
	var sb strings.Builder
	for _, field := range []string{
		p.DeviceName, p.Platform, p.PlatformName, p.PlatformVersion, p.BrowserName, p.Version,
	} {
		if field != "" {
			sb.WriteString(field)
			sb.WriteString(" ")
		}
	}
	name := strings.TrimSpace(sb.String())
	if name == "" {
		return base
	}
	if base == "" {
		return name
	}
	return name + " - " + base
}

// RunDefaults are the fixed per-run capability defaults every platform
// is merged with. Build and tunnel identifiers usually come from the CI
// environment.
type RunDefaults struct {
	Build          string
	TunnelID       string
	MaxDuration    time.Duration
	CommandTimeout time.Duration
	IdleTimeout    time.Duration
}

// Capabilities merges the run defaults with the platform descriptor and
// the derived display name into the capability set sent to the grid.
// Descriptor fields win over defaults; the name is always the derived one.
func (p Platform) Capabilities(base string, def RunDefaults) Capabilities {
	caps := Capabilities{
		"max-duration":    int(def.MaxDuration / time.Second),
		"command-timeout": int(def.CommandTimeout / time.Second),
		"idle-timeout":    int(def.IdleTimeout / time.Second),
	}
	if def.Build != "" {
		caps["build"] = def.Build
	}
	if def.TunnelID != "" {
		caps["tunnel-identifier"] = def.TunnelID
	}

	setIfPresent := func(key, value string) {
		if value != "" {
			caps[key] = value
		}
	}
	setIfPresent("deviceName", p.DeviceName)
	setIfPresent("platform", p.Platform)
	setIfPresent("platformName", p.PlatformName)
	setIfPresent("platformVersion", p.PlatformVersion)
	setIfPresent("browserName", p.BrowserName)
	setIfPresent("version", p.Version)

	if p.MaxDuration > 0 {
		caps["max-duration"] = p.MaxDuration
	}
	if p.CommandTimeout > 0 {
		caps["command-timeout"] = p.CommandTimeout
	}
	if p.IdleTimeout > 0 {
		caps["idle-timeout"] = p.IdleTimeout
	}
	for k, v := range p.Extra {
		caps[k] = v
	}

	caps["name"] = p.DisplayName(base)
	return caps
}

// EffectiveIdleTimeout returns the element-wait bound for this platform,
// falling back to the run default when the descriptor doesn't set one.
func (p Platform) EffectiveIdleTimeout(def RunDefaults) time.Duration {
	if p.IdleTimeout > 0 {
		return time.Duration(p.IdleTimeout) * time.Second
	}
	return def.IdleTimeout
}
