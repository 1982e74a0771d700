package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// RequestTimeout is the default API request timeout
	RequestTimeout = 20 * time.Second
	// RetryInterval is the default API request retry interval
	RetryInterval = 500 * time.Millisecond
	// MaxRetries specifies max retry attempts
	MaxRetries = 3
)

// Client handles communication with the grid provider's REST API.
type Client struct {
	client    *http.Client
	baseURL   string
	webAppURL string
	username  string
	accessKey string
	logger    logrus.FieldLogger

	retries       int
	retryInterval time.Duration
}

// NewClient returns a new client for the job API.
func NewClient(logger logrus.FieldLogger, conf Config) *Client {
	timeout := conf.Timeout.TimeDuration()
	if timeout <= 0 {
		timeout = RequestTimeout
	}
	return &Client{
		client:        &http.Client{Timeout: timeout},
		baseURL:       conf.Host.String,
		webAppURL:     conf.WebAppURL.String,
		username:      conf.Username.String,
		accessKey:     conf.AccessKey.String,
		logger:        logger,
		retries:       MaxRetries,
		retryInterval: RetryInterval,
	}
}

// JobStatusResponse is the provider's bookkeeping record for one
// session. A non-empty Error field means the job itself failed, which
// is distinct from a failed status query.
type JobStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// JobStatus queries the health of the job with the provided id.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}

	jsr := JobStatusResponse{}
	if err := c.do(req, &jsr); err != nil {
		return nil, err
	}
	return &jsr, nil
}

// UpdateJob reports the final pass/fail verdict for a job back to the
// provider, so the web UI shows the right result.
func (c *Client) UpdateJob(ctx context.Context, jobID string, passed bool) error {
	data := struct {
		Passed bool `json:"passed"`
	}{passed}

	req, err := c.newRequest(ctx, http.MethodPut, c.baseURL+"/jobs/"+jobID, data)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// StopJob tells the provider to stop the job with the provided id.
func (c *Client) StopJob(ctx context.Context, jobID string) error {
	req, err := c.newRequest(ctx, http.MethodPut, c.baseURL+"/jobs/"+jobID+"/stop", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// JobURL returns the web app URL with the job's details page.
func (c *Client) JobURL(jobID string) string {
	return c.webAppURL + "/jobs/" + jobID
}

// newRequest creates a new HTTP request; data, if not nil, is
// serialized as the JSON body.
func (c *Client) newRequest(ctx context.Context, method, url string, data interface{}) (*http.Request, error) {
	var buf io.Reader
	if data != nil {
		b, err := json.Marshal(&data)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, buf)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Client) do(req *http.Request, v interface{}) error {
	if req.Body != nil && req.GetBody == nil {
		originalBody, err := io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		if err = req.Body.Close(); err != nil {
			return err
		}

		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(originalBody)), nil
		}
		req.Body, _ = req.GetBody()
	}

	c.prepareHeaders(req)

	for i := 1; i <= c.retries; i++ {
		retry, err := c.doOnce(req, v, i)
		if retry {
			c.logger.WithError(err).WithField("attempt", i).Debug("retrying API request")
			time.Sleep(c.retryInterval)
			if req.GetBody != nil {
				req.Body, _ = req.GetBody()
			}
			continue
		}
		return err
	}

	return nil
}

func (c *Client) prepareHeaders(req *http.Request) {
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.accessKey)
	}
	req.Header.Set("User-Agent", "gridrun")
}

func (c *Client) doOnce(req *http.Request, v interface{}, attempt int) (retry bool, err error) {
	resp, err := c.client.Do(req) //nolint:bodyclose // closed in the defer below
	defer func() {
		if resp != nil {
			if cerr := resp.Body.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()

	if shouldRetry(resp, err, attempt, c.retries) {
		return true, err
	}
	if err != nil {
		return false, err
	}
	if err = checkResponse(resp); err != nil {
		return false, err
	}

	if v != nil {
		if err = json.NewDecoder(resp.Body).Decode(v); err == io.EOF {
			err = nil // Ignore EOF from empty body
		}
	}
	return false, err
}

func checkResponse(r *http.Response) error {
	if r == nil {
		return ErrUnknown
	}

	if c := r.StatusCode; c >= 200 && c <= 299 {
		return nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	var payload struct {
		Error ErrorResponse `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		if r.StatusCode == http.StatusUnauthorized {
			return ErrNotAuthenticated
		}
		if r.StatusCode == http.StatusForbidden {
			return ErrNotAuthorized
		}
		return fmt.Errorf(
			"unexpected HTTP error from %s: %d %s",
			r.Request.URL,
			r.StatusCode,
			http.StatusText(r.StatusCode),
		)
	}
	payload.Error.Response = r
	return payload.Error
}

func shouldRetry(resp *http.Response, err error, attempt, maxAttempts int) bool {
	if attempt >= maxAttempts {
		return false
	}
	if resp == nil || err != nil {
		return true
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return false
}
