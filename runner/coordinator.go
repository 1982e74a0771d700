package runner

import (
	"context"
	"sync"

	"github.com/gridrun/gridrun/lib"
)

// SessionRegistry tracks the job ids of currently live sessions, so a
// signal handler can ask the provider to stop them.
type SessionRegistry struct {
	mx  sync.Mutex
	ids map[string]struct{}
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{ids: make(map[string]struct{})}
}

func (sr *SessionRegistry) add(id string) {
	sr.mx.Lock()
	defer sr.mx.Unlock()
	sr.ids[id] = struct{}{}
}

func (sr *SessionRegistry) remove(id string) {
	sr.mx.Lock()
	defer sr.mx.Unlock()
	delete(sr.ids, id)
}

// IDs returns a snapshot of the live job ids.
func (sr *SessionRegistry) IDs() []string {
	sr.mx.Lock()
	defer sr.mx.Unlock()
	ids := make([]string, 0, len(sr.ids))
	for id := range sr.ids {
		ids = append(ids, id)
	}
	return ids
}

// Coordinator expands test targets into per-platform tasks, executes
// them and owns the aggregation of their outcomes.
type Coordinator struct {
	Runner   *Runner
	Parallel bool
}

// Run executes the tasks either all concurrently or strictly in list
// order and returns one Result per task, index-aligned with the input.
// Every task is guaranteed to produce a result; failures come back as
// Passed == false, never as missing entries.
func (c *Coordinator) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))

	if c.Parallel {
		var wg sync.WaitGroup
		for i := range tasks {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.Runner.Run(ctx, tasks[i])
			}(i)
		}
		wg.Wait()
		return results
	}

	for i := range tasks {
		results[i] = c.Runner.Run(ctx, tasks[i])
	}
	return results
}

// StopActive asks the provider to stop every currently live job. It is
// meant to be called from a signal handler while Run is in flight.
func (c *Coordinator) StopActive(ctx context.Context) error {
	if c.Runner.Sessions == nil {
		return nil
	}
	var firstErr error
	for _, id := range c.Runner.Sessions.IDs() {
		if err := c.Runner.Jobs.StopJob(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AllPassed folds the per-task outcomes with logical AND.
func AllPassed(results []Result) bool {
	for _, res := range results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// BuildTasks expands every target into one task per resolved platform,
// in target order, with each target's platforms in list order.
func BuildTasks(opts lib.Options, def lib.RunDefaults) []Task {
	var tasks []Task
	for _, target := range opts.Targets {
		base := opts.BaseName.String
		if target.Name != "" {
			base = target.Name
		}
		for _, platform := range target.ResolvePlatforms(opts.Platforms) {
			tasks = append(tasks, Task{
				Name:         platform.DisplayName(base),
				URL:          target.URL,
				Capabilities: platform.Capabilities(base, def),
				IdleTimeout:  platform.EffectiveIdleTimeout(def),
			})
		}
	}
	return tasks
}
