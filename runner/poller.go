package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gridrun/gridrun/cloudapi"
)

// JobStatusClient is the part of the grid API the status poller needs.
type JobStatusClient interface {
	JobStatus(ctx context.Context, jobID string) (*cloudapi.JobStatusResponse, error)
}

// pollJobStatus queries the job's health immediately and then at every
// interval until the context is cancelled. A failed status query is a
// transient infrastructure blip: it is logged and the loop re-arms. A
// job-level error reported by the provider is decisive and returned.
// The poller never produces a success signal; a nil return only means
// the context was cancelled.
func pollJobStatus(
	ctx context.Context,
	client JobStatusClient,
	jobID string,
	interval time.Duration,
	progress io.Writer,
	logger logrus.FieldLogger,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := client.JobStatus(ctx, jobID)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			logger.WithError(err).Warn("job status query failed, will retry")
		case status.Error != "":
			return fmt.Errorf("job reported an error: %s", status.Error)
		default:
			_, _ = progress.Write([]byte("."))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
