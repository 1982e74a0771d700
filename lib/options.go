package lib

import (
	"fmt"
	"net/url"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/gridrun/gridrun/lib/types"
)

// Target pairs one test page URL with an optional platform override
// list. A nil Platforms slice means the run's default platform list
// applies.
type Target struct {
	URL       string     `json:"url" yaml:"url"`
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Platforms []Platform `json:"platforms,omitempty" yaml:"platforms,omitempty"`
}

// ResolvePlatforms returns the platform list a target actually runs
// under, falling back to the supplied defaults.
func (t Target) ResolvePlatforms(defaults []Platform) []Platform {
	if len(t.Platforms) > 0 {
		return t.Platforms
	}
	return defaults
}

// Selectors are the CSS selectors for the three on-page result counters.
type Selectors struct {
	Passed null.String `json:"passed" yaml:"passed"`
	Failed null.String `json:"failed" yaml:"failed"`
	Total  null.String `json:"total" yaml:"total"`
}

// Apply merges the valid fields of sel into s and returns the result.
func (s Selectors) Apply(sel Selectors) Selectors {
	if sel.Passed.Valid {
		s.Passed = sel.Passed
	}
	if sel.Failed.Valid {
		s.Failed = sel.Failed
	}
	if sel.Total.Valid {
		s.Total = sel.Total
	}
	return s
}

// Options are the global run knobs. Like all option structs they use
// nullable types so that defaults, config files, environment variables
// and CLI flags can be layered with Apply.
type Options struct {
	// BaseName is the suite name appended to every platform's display name.
	BaseName null.String `json:"baseName" yaml:"baseName" envconfig:"GRIDRUN_BASE_NAME"`

	// Parallel runs all platform tasks concurrently instead of strictly
	// one after another.
	Parallel null.Bool `json:"parallel" yaml:"parallel" envconfig:"GRIDRUN_PARALLEL"`

	// ZeroAssertionsPass makes a run with zero total assertions count as
	// passing rather than failing.
	ZeroAssertionsPass null.Bool `json:"zeroAssertionsPass" yaml:"zeroAssertionsPass" envconfig:"GRIDRUN_ZERO_ASSERTIONS_PASS"`

	// PollInterval is used both for the keep-alive heartbeat and the job
	// status poller.
	PollInterval types.NullDuration `json:"pollInterval" yaml:"pollInterval" envconfig:"GRIDRUN_POLL_INTERVAL"`

	// StaleRetryLimit bounds how many times one platform's result read is
	// restarted after a stale element fault.
	StaleRetryLimit null.Int `json:"staleRetryLimit" yaml:"staleRetryLimit" envconfig:"GRIDRUN_STALE_RETRY_LIMIT"`

	Selectors Selectors `json:"selectors" yaml:"selectors"`

	Platforms []Platform `json:"platforms,omitempty" yaml:"platforms,omitempty"`
	Targets   []Target   `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// DefaultOptions returns the documented option defaults. The counter
// selectors match the result summary QUnit renders into its fixture.
func DefaultOptions() Options {
	return Options{
		BaseName:           null.NewString("qunit tests", false),
		Parallel:           null.NewBool(true, false),
		ZeroAssertionsPass: null.NewBool(false, false),
		PollInterval:       types.NewNullDuration(2*time.Second, false),
		StaleRetryLimit:    null.NewInt(10, false),
		Selectors: Selectors{
			Passed: null.NewString("#qunit-testresult .passed", false),
			Failed: null.NewString("#qunit-testresult .failed", false),
			Total:  null.NewString("#qunit-testresult .total", false),
		},
	}
}

// Apply overlays the valid fields of opts on o and returns the result.
func (o Options) Apply(opts Options) Options {
	if opts.BaseName.Valid {
		o.BaseName = opts.BaseName
	}
	if opts.Parallel.Valid {
		o.Parallel = opts.Parallel
	}
	if opts.ZeroAssertionsPass.Valid {
		o.ZeroAssertionsPass = opts.ZeroAssertionsPass
	}
	if opts.PollInterval.Valid {
		o.PollInterval = opts.PollInterval
	}
	if opts.StaleRetryLimit.Valid {
		o.StaleRetryLimit = opts.StaleRetryLimit
	}
	o.Selectors = o.Selectors.Apply(opts.Selectors)
	if opts.Platforms != nil {
		o.Platforms = opts.Platforms
	}
	if opts.Targets != nil {
		o.Targets = opts.Targets
	}
	return o
}

// Validate checks that the options describe a runnable suite.
func (o Options) Validate() error {
	if len(o.Targets) == 0 {
		return fmt.Errorf("no test targets configured")
	}
	for i, t := range o.Targets {
		if t.URL == "" {
			return fmt.Errorf("target %d has no url", i)
		}
		if _, err := url.Parse(t.URL); err != nil {
			return fmt.Errorf("target %d has an invalid url: %w", i, err)
		}
		if len(t.ResolvePlatforms(o.Platforms)) == 0 {
			return fmt.Errorf("target %d resolves to zero platforms", i)
		}
	}
	return nil
}
