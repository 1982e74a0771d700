// Package webdriver implements the small subset of the W3C WebDriver
// wire protocol gridrun needs to drive a remote browser: session
// creation, navigation, element waits, text reads and session teardown.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// RequestTimeout is the default timeout for a single WebDriver command.
// Session creation against a busy grid can queue for a while, so this is
// deliberately generous.
const RequestTimeout = 5 * time.Minute

// Client talks to a remote WebDriver endpoint, e.g. the /wd/hub of a
// cloud browser grid.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	accessKey  string
	logger     logrus.FieldLogger
}

// NewClient returns a new WebDriver client for the given endpoint. The
// username and access key are sent as HTTP basic auth, which is how the
// hosted grids authenticate session commands.
func NewClient(logger logrus.FieldLogger, username, accessKey, host string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = RequestTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(host, "/"),
		username:   username,
		accessKey:  accessKey,
		logger:     logger,
	}
}

// command executes one WebDriver command and returns the raw response
// body. Protocol-level failures are returned as *CommandError.
func (c *Client) command(ctx context.Context, method, path string, data interface{}) ([]byte, error) {
	var buf io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.accessKey)
	}

	c.logger.WithFields(logrus.Fields{"method": method, "path": path}).Debug("webdriver command")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if cmdErr := checkResponse(resp.StatusCode, body); cmdErr != nil {
		return nil, cmdErr
	}
	return body, nil
}

// NewSession asks the remote end for a new browser session with the
// given capabilities. They are sent in both the W3C and the legacy JSON
// wire shape, older grid endpoints only understand the latter.
func (c *Client) NewSession(ctx context.Context, caps map[string]interface{}) (*Session, error) {
	payload := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": caps,
		},
		"desiredCapabilities": caps,
	}
	body, err := c.command(ctx, http.MethodPost, "/session", payload)
	if err != nil {
		return nil, fmt.Errorf("could not create session: %w", err)
	}

	id := gjson.GetBytes(body, "value.sessionId").String()
	if id == "" {
		id = gjson.GetBytes(body, "sessionId").String()
	}
	if id == "" {
		return nil, fmt.Errorf("could not create session: no session id in response")
	}

	return &Session{client: c, id: id}, nil
}
