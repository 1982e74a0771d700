package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gridrun/gridrun/webdriver"
)

const (
	// elementPollInterval is the granularity of the on-page element waits.
	elementPollInterval = 2 * time.Second
	// staleRetryDelay is how long a stale-element fault pauses the
	// scraper before the whole counter sequence is re-read.
	staleRetryDelay = 2 * time.Second
)

// Counters are the three raw result strings scraped from the page. They
// are kept as strings on purpose: the pass predicate compares the
// scraped text verbatim, it never parses numbers.
type Counters struct {
	Passed string
	Failed string
	Total  string
}

// Pass applies the result predicate: every assertion passed, none
// failed, and the suite actually ran assertions (unless zero-assertion
// runs are allowed to pass).
func (c Counters) Pass(zeroAssertionsPass bool) bool {
	return c.Passed == c.Total && c.Failed == "0" && (c.Total != "0" || zeroAssertionsPass)
}

// CounterSelectors are the CSS selectors of the three result counters.
type CounterSelectors struct {
	Passed string
	Failed string
	Total  string
}

// CounterReader performs one full read of the three result counters.
// Implementations must read passed, then failed, then total strictly in
// order: all three target the same live page and should be as close to
// one consistent snapshot as the page allows.
type CounterReader func(ctx context.Context) (Counters, error)

// ReadSessionCounters returns the CounterReader for a live WebDriver
// session. waitTimeout bounds each element wait; it is typically the
// platform's idle timeout.
func ReadSessionCounters(sess *webdriver.Session, sel CounterSelectors, waitTimeout time.Duration) CounterReader {
	readOne := func(ctx context.Context, selector string) (string, error) {
		el, err := sess.WaitForElement(ctx, selector, waitTimeout, elementPollInterval)
		if err != nil {
			return "", err
		}
		return el.Text(ctx)
	}

	return func(ctx context.Context) (Counters, error) {
		var c Counters
		var err error
		if c.Passed, err = readOne(ctx, sel.Passed); err != nil {
			return Counters{}, err
		}
		if c.Failed, err = readOne(ctx, sel.Failed); err != nil {
			return Counters{}, err
		}
		if c.Total, err = readOne(ctx, sel.Total); err != nil {
			return Counters{}, err
		}
		return c, nil
	}
}

// scrapeResult drives a CounterReader to a final set of counters. Any
// read failure aborts, except the stale-element fault: the page may
// re-render its result summary while we read it, so the whole
// three-counter sequence is retried after a short delay, at most
// retryLimit times.
func scrapeResult(
	ctx context.Context,
	read CounterReader,
	isTransient func(error) bool,
	retryLimit int,
	logger logrus.FieldLogger,
) (Counters, error) {
	for attempt := 0; ; attempt++ {
		counters, err := read(ctx)
		if err == nil {
			return counters, nil
		}
		if !isTransient(err) {
			return Counters{}, err
		}
		if attempt >= retryLimit {
			return Counters{}, fmt.Errorf("giving up after %d stale element retries: %w", retryLimit, err)
		}

		logger.WithError(err).Debug("stale element while reading results, re-reading all counters")
		select {
		case <-ctx.Done():
			return Counters{}, ctx.Err()
		case <-time.After(staleRetryDelay):
		}
	}
}

// defaultIsTransient recognizes the stale-element fault on the wire.
var defaultIsTransient = webdriver.IsStaleElement
