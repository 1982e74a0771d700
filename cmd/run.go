package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gridrun/gridrun/cloudapi"
	"github.com/gridrun/gridrun/errext"
	"github.com/gridrun/gridrun/errext/exitcodes"
	"github.com/gridrun/gridrun/lib"
	"github.com/gridrun/gridrun/runner"
	"github.com/gridrun/gridrun/webdriver"
)

// cmdRun handles the gridrun run sub-command
type cmdRun struct {
	gs *globalState
}

func getRunCmd(gs *globalState) *cobra.Command {
	c := &cmdRun{gs: gs}

	runCmd := &cobra.Command{
		Use:   "run <suitefile>",
		Short: "Run a test suite across the browser grid",
		Long: `Run a test suite across the browser grid.

This opens every configured browser/OS combination on the remote grid, points it
at the suite's test page and folds the per-platform verdicts into the exit code.
Use "gridrun login" first to store your credentials.`,
		Example: `
  # Run the suite described in gridrun.yaml
  gridrun run gridrun.yaml

  # Run the platforms one after another instead of concurrently
  gridrun run --parallel=false gridrun.yaml`[1:],
		Args: exactArgsWithMsg(1, "arg should be a path to a suite file"),
		RunE: c.run,
	}

	runCmd.Flags().SortFlags = false
	runCmd.Flags().AddFlagSet(c.flagSet())
	return runCmd
}

func (c *cmdRun) flagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false

	flags.String("base-name", "", "base name for the jobs on the grid")
	flags.Bool("parallel", true, "run all platforms concurrently")
	flags.Bool("zero-assertions-pass", false, "treat a page with zero assertions as passing")
	flags.Duration("poll-interval", 2*time.Second, "`interval` between job status polls")
	flags.Int64("stale-retry-limit", 10, "how often a result read is retried after a stale element")
	flags.String("build", "", "build `id` attached to every job, e.g. the CI build number")
	flags.String("tunnel-id", "", "tunnel `id` for reaching suites behind a firewall")
	return flags
}

func (c *cmdRun) run(cmd *cobra.Command, args []string) error {
	gs := c.gs

	suiteConf, err := loadSuiteConfig(gs, args[0])
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	conf, err := getConsolidatedConfig(gs, getConfig(cmd.Flags()), suiteConf)
	if err != nil {
		return err
	}

	gridConf, err := cloudapi.GetConsolidatedConfig(conf.Grid, gs.envVars)
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	gridConf = gridConf.Apply(cloudapi.Config{
		Build:    getNullString(cmd.Flags(), "build"),
		TunnelID: getNullString(cmd.Flags(), "tunnel-id"),
	})
	if !gridConf.Username.Valid || !gridConf.AccessKey.Valid {
		return errext.WithExitCodeIfNone(
			errors.New("no grid credentials, please use `gridrun login` first"), exitcodes.InvalidConfig)
	}

	logger := gs.logger
	progress := io.Writer(gs.stdOut)
	if gs.flags.quiet {
		progress = io.Discard
	}

	browser := webdriver.NewClient(
		logger, gridConf.Username.String, gridConf.AccessKey.String,
		gridConf.WDHost.String, 0,
	)
	jobs := cloudapi.NewClient(logger, gridConf)

	defaults := lib.RunDefaults{
		Build:          gridConf.Build.String,
		TunnelID:       gridConf.TunnelID.String,
		MaxDuration:    defaultMaxDuration,
		CommandTimeout: defaultCommandTimeout,
		IdleTimeout:    defaultIdleTimeout,
	}
	tasks := runner.BuildTasks(conf.Options, defaults)

	pollInterval := conf.PollInterval.TimeDuration()
	coordinator := &runner.Coordinator{
		Runner: &runner.Runner{
			Browser:   browser,
			Jobs:      jobs,
			Heartbeat: runner.NewHeartbeat(progress, pollInterval),
			Sessions:  runner.NewSessionRegistry(),
			Progress:  progress,
			Logger:    logger,
			Config: runner.Config{
				PollInterval:       pollInterval,
				StaleRetryLimit:    int(conf.StaleRetryLimit.Int64),
				ZeroAssertionsPass: conf.ZeroAssertionsPass.Bool,
				Selectors: runner.CounterSelectors{
					Passed: conf.Selectors.Passed.String,
					Failed: conf.Selectors.Failed.String,
					Total:  conf.Selectors.Total.String,
				},
			},
			JobURL: jobs.JobURL,
		},
		Parallel: conf.Parallel.Bool,
	}

	runCtx, runCancel := context.WithCancel(gs.ctx)
	defer runCancel()

	gracefulStop := func(sig os.Signal) {
		logger.WithField("sig", sig).Debug("stopping remote jobs in response to signal...")
		// Do this in a separate goroutine so that if it blocks, the
		// second signal can still abort the process execution.
		go func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopJobsTimeout)
			defer stopCancel()
			if stopErr := coordinator.StopActive(stopCtx); stopErr != nil {
				logger.WithError(stopErr).Error("could not stop all remote jobs")
			}
			runCancel()
		}()
	}
	hardStop := func(sig os.Signal) {
		logger.WithField("sig", sig).Error("aborting gridrun in response to signal, remote jobs may keep running")
	}
	stopSignalHandling := handleRunAbortSignals(gs, gracefulStop, hardStop)
	defer stopSignalHandling()

	if !gs.flags.quiet {
		printToStdout(gs, fmt.Sprintf("running %d platform(s) against the grid\n", len(tasks)))
	}

	results := coordinator.Run(runCtx, tasks)
	printToStdout(gs, "\n")
	c.printResults(results)

	if runCtx.Err() != nil {
		return errext.WithExitCodeIfNone(errors.New("the run was aborted"), exitcodes.ExternalAbort)
	}
	if !runner.AllPassed(results) {
		return errext.WithExitCodeIfNone(errors.New("some platform runs failed"), exitcodes.TestsFailed)
	}
	return nil
}

const (
	defaultMaxDuration    = 10 * time.Minute
	defaultCommandTimeout = 5 * time.Minute
	defaultIdleTimeout    = 5 * time.Minute

	stopJobsTimeout = 30 * time.Second
)

func (c *cmdRun) printResults(results []runner.Result) {
	gs := c.gs
	noColor := gs.flags.noColor || !gs.stdOut.isTTY
	passColor := getColor(noColor, color.FgGreen)
	failColor := getColor(noColor, color.FgRed)

	for _, res := range results {
		switch {
		case res.Err != nil:
			printToStdout(gs, fmt.Sprintf("%s %s: %s\n",
				failColor.Sprint("ERRORED"), res.Name, res.Err.Error()))
		case res.Passed:
			printToStdout(gs, fmt.Sprintf("%s %s: %s passed, %s failed, %s total\n",
				passColor.Sprint("PASSED "), res.Name,
				res.Counters.Passed, res.Counters.Failed, res.Counters.Total))
		default:
			printToStdout(gs, fmt.Sprintf("%s %s: %s passed, %s failed, %s total\n",
				failColor.Sprint("FAILED "), res.Name,
				res.Counters.Passed, res.Counters.Failed, res.Counters.Total))
		}
		if res.JobURL != "" && (res.Err != nil || !res.Passed) {
			printToStdout(gs, fmt.Sprintf("        see %s\n", res.JobURL))
		}
	}
}
