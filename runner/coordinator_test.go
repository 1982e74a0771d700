package runner

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/gridrun/gridrun/lib"
)

func TestCoordinatorRun(t *testing.T) {
	t.Parallel()

	names := []string{"linux firefox", "win chrome", "mac safari"}
	counters := map[string]Counters{
		"linux firefox": {Passed: "5", Failed: "0", Total: "5"},
		"win chrome":    {Passed: "4", Failed: "1", Total: "5"},
		"mac safari":    {Passed: "7", Failed: "0", Total: "7"},
	}

	run := func(t *testing.T, parallel bool) []Result {
		grid := newFakeGrid()
		jobs := newFakeJobs()
		c := &Coordinator{
			Runner:   newTestRunner(t, grid, jobs, counters),
			Parallel: parallel,
		}

		tasks := make([]Task, len(names))
		for i, name := range names {
			tasks[i] = Task{
				Name:         name,
				URL:          fmt.Sprintf("http://localhost:8000/%d.html", i),
				Capabilities: map[string]interface{}{"name": name},
			}
		}

		results := c.Run(context.Background(), tasks)
		require.Len(t, results, len(tasks))
		for i, res := range results {
			assert.Equal(t, tasks[i].Name, res.Name)
			require.NoError(t, res.Err)
		}

		// every session got exactly one teardown
		for _, id := range []string{"job-1", "job-2", "job-3"} {
			assert.Equal(t, 1, grid.closedCount(id))
			_, reported := jobs.verdict(id)
			assert.True(t, reported)
		}
		return results
	}

	verdicts := func(results []Result) map[string]bool {
		out := make(map[string]bool, len(results))
		for _, res := range results {
			out[res.Name] = res.Passed
		}
		return out
	}

	parallel := run(t, true)
	sequential := run(t, false)

	expected := map[string]bool{
		"linux firefox": true,
		"win chrome":    false,
		"mac safari":    true,
	}
	assert.Equal(t, expected, verdicts(parallel))
	assert.Equal(t, expected, verdicts(sequential))
	assert.False(t, AllPassed(parallel))
	assert.False(t, AllPassed(sequential))
}

func TestAllPassed(t *testing.T) {
	t.Parallel()

	assert.True(t, AllPassed(nil))
	assert.True(t, AllPassed([]Result{{Passed: true}, {Passed: true}}))
	assert.False(t, AllPassed([]Result{{Passed: true}, {Passed: false}, {Passed: true}}))
}

func TestStopActive(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobs()
	sessions := NewSessionRegistry()
	sessions.add("job-1")
	sessions.add("job-2")

	c := &Coordinator{Runner: &Runner{Jobs: jobs, Sessions: sessions}}
	require.NoError(t, c.StopActive(context.Background()))

	sort.Strings(jobs.stopped)
	assert.Equal(t, []string{"job-1", "job-2"}, jobs.stopped)
}

func TestBuildTasks(t *testing.T) {
	t.Parallel()

	opts := lib.Options{
		BaseName: null.StringFrom("qunit tests"),
		Platforms: []lib.Platform{
			{Platform: "Linux", BrowserName: "firefox", Version: "128"},
			{Platform: "Windows 11", BrowserName: "chrome"},
		},
		Targets: []lib.Target{
			{URL: "http://localhost:8000/core.html"},
			{
				URL:       "http://localhost:8000/smoke.html",
				Name:      "smoke suite",
				Platforms: []lib.Platform{{Platform: "Linux", BrowserName: "chrome", IdleTimeout: 120}},
			},
		},
	}
	def := lib.RunDefaults{Build: "build-17", IdleTimeout: 90 * time.Second}

	tasks := BuildTasks(opts, def)
	require.Len(t, tasks, 3)

	assert.Equal(t, "Linux firefox 128 - qunit tests", tasks[0].Name)
	assert.Equal(t, "http://localhost:8000/core.html", tasks[0].URL)
	assert.Equal(t, tasks[0].Name, tasks[0].Capabilities["name"])
	assert.Equal(t, "build-17", tasks[0].Capabilities["build"])
	assert.Equal(t, 90*time.Second, tasks[0].IdleTimeout)

	assert.Equal(t, "Windows 11 chrome - qunit tests", tasks[1].Name)

	// the target's own name and platform list win over the defaults
	assert.Equal(t, "Linux chrome - smoke suite", tasks[2].Name)
	assert.Equal(t, "http://localhost:8000/smoke.html", tasks[2].URL)
	assert.Equal(t, 120*time.Second, tasks[2].IdleTimeout)
}
