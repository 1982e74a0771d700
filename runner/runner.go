package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gridrun/gridrun/webdriver"
)

// teardownTimeout bounds the outcome report and session close that run
// on every exit path, including an already-cancelled run context.
const teardownTimeout = 30 * time.Second

// Browser creates remote browser sessions. *webdriver.Client implements it.
type Browser interface {
	NewSession(ctx context.Context, caps map[string]interface{}) (*webdriver.Session, error)
}

// JobClient is the part of the grid API a runner needs: polling job
// health, reporting the verdict and stopping jobs on abort.
type JobClient interface {
	JobStatusClient
	UpdateJob(ctx context.Context, jobID string, passed bool) error
	StopJob(ctx context.Context, jobID string) error
}

// Config are the per-run knobs shared by all platform runners.
type Config struct {
	PollInterval       time.Duration
	StaleRetryLimit    int
	ZeroAssertionsPass bool
	Selectors          CounterSelectors
}

// Task is one unit of work: run the suite at URL under one platform.
type Task struct {
	Name         string
	URL          string
	Capabilities map[string]interface{}

	// IdleTimeout bounds each on-page element wait.
	IdleTimeout time.Duration
}

// Result is the outcome of one task. Err carries diagnostics only; a
// failed platform is expressed as Passed == false, never as a fatal
// error, so one platform can't abort the others.
type Result struct {
	Name     string
	Passed   bool
	Counters *Counters
	JobURL   string
	Err      error
}

// Runner executes tasks one platform at a time. It is safe for
// concurrent use: all mutable state lives in the method scope.
type Runner struct {
	Browser   Browser
	Jobs      JobClient
	Heartbeat *Heartbeat
	Sessions  *SessionRegistry
	Progress  io.Writer
	Logger    logrus.FieldLogger
	Config    Config

	// JobURL renders a diagnostics link for a job id; optional.
	JobURL func(jobID string) string

	// Test hooks; nil means the webdriver-backed defaults.
	newCounterReader func(sess *webdriver.Session, sel CounterSelectors, waitTimeout time.Duration) CounterReader
	isTransient      func(error) bool
}

func (r *Runner) progress() io.Writer {
	if r.Progress == nil {
		return io.Discard
	}
	return r.Progress
}

// Run takes one task through the full session lifecycle: initialize,
// navigate, poll job health and scrape results concurrently, decide,
// tear down. It always returns a Result and never panics its way past
// the coordinator.
func (r *Runner) Run(ctx context.Context, task Task) Result {
	res := Result{Name: task.Name}
	logger := r.Logger.WithField("platform", task.Name)

	newReader := r.newCounterReader
	if newReader == nil {
		newReader = ReadSessionCounters
	}
	isTransient := r.isTransient
	if isTransient == nil {
		isTransient = defaultIsTransient
	}

	logger.Debug("initializing remote session")
	if r.Heartbeat != nil {
		r.Heartbeat.Acquire()
	}
	sess, err := r.Browser.NewSession(ctx, task.Capabilities)
	if r.Heartbeat != nil {
		r.Heartbeat.Release()
	}
	if err != nil {
		res.Err = fmt.Errorf("could not initialize session: %w", err)
		return res
	}

	if r.JobURL != nil {
		res.JobURL = r.JobURL(sess.ID())
	}
	if r.Sessions != nil {
		r.Sessions.add(sess.ID())
	}
	logger.WithField("job", sess.ID()).Debug("session ready")

	defer func() {
		// Teardown must happen even when the run context is already
		// cancelled, so it gets its own deadline.
		tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		if uerr := r.Jobs.UpdateJob(tctx, sess.ID(), res.Passed); uerr != nil {
			logger.WithError(uerr).Warn("could not report job outcome")
		}
		if cerr := sess.Close(tctx); cerr != nil {
			logger.WithError(cerr).Warn("could not close session")
		}
		if r.Sessions != nil {
			r.Sessions.remove(sess.ID())
		}
	}()

	if err := sess.Navigate(ctx, task.URL); err != nil {
		res.Err = err
		return res
	}

	// Poll job health and scrape the result counters concurrently;
	// whichever reaches a decisive outcome first wins. A decisive job
	// error cancels the scraper through the shared context.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var jobErr error
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		if perr := pollJobStatus(runCtx, r.Jobs, sess.ID(), r.Config.PollInterval, r.progress(), logger); perr != nil {
			jobErr = perr
			cancel()
		}
	}()

	read := newReader(sess, r.Config.Selectors, task.IdleTimeout)
	counters, scrapeErr := scrapeResult(runCtx, read, isTransient, r.Config.StaleRetryLimit, logger)
	cancel()
	<-pollDone

	switch {
	case scrapeErr == nil:
		res.Counters = &counters
		res.Passed = counters.Pass(r.Config.ZeroAssertionsPass)
	case jobErr != nil:
		res.Err = jobErr
	default:
		res.Err = fmt.Errorf("could not read test results: %w", scrapeErr)
	}
	return res
}
