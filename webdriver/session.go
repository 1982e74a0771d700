package webdriver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// elementKey is the W3C WebDriver element identifier key.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

// Session is one live remote browser, addressed by its opaque id. On
// the hosted grids the session id doubles as the job id of the
// provider's bookkeeping record.
type Session struct {
	client *Client
	id     string
}

// ID returns the opaque session identifier.
func (s *Session) ID() string {
	return s.id
}

// Navigate points the remote browser at the given URL and blocks until
// the remote end acknowledges the navigation.
func (s *Session) Navigate(ctx context.Context, url string) error {
	_, err := s.client.command(ctx, http.MethodPost, "/session/"+s.id+"/url",
		map[string]string{"url": url})
	if err != nil {
		return fmt.Errorf("could not navigate to %q: %w", url, err)
	}
	return nil
}

// findElement locates an element by CSS selector.
func (s *Session) findElement(ctx context.Context, selector string) (*Element, error) {
	body, err := s.client.command(ctx, http.MethodPost, "/session/"+s.id+"/element",
		map[string]string{"using": "css selector", "value": selector})
	if err != nil {
		return nil, err
	}

	id := gjson.GetBytes(body, "value."+elementKey).String()
	if id == "" {
		// legacy JSON wire protocol shape
		id = gjson.GetBytes(body, "value.ELEMENT").String()
	}
	if id == "" {
		return nil, &CommandError{Code: errCodeNoSuchElement, Message: "no element id in response"}
	}
	return &Element{session: s, id: id}, nil
}

// WaitForElement polls for an element matching the CSS selector until
// it appears or the timeout expires. Only "element not found" responses
// re-arm the poll; any other failure aborts immediately.
func (s *Session) WaitForElement(ctx context.Context, selector string, timeout, poll time.Duration) (*Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		el, err := s.findElement(ctx, selector)
		if err == nil {
			return el, nil
		}
		if !isNoSuchElement(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for element %q: %w", selector, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Close releases the remote browser. The session must not be used
// afterwards.
func (s *Session) Close(ctx context.Context) error {
	_, err := s.client.command(ctx, http.MethodDelete, "/session/"+s.id, nil)
	if err != nil {
		return fmt.Errorf("could not close session %s: %w", s.id, err)
	}
	return nil
}

// Element is a handle to a located DOM node. It becomes stale if the
// page replaces the node, in which case reads fail with a
// stale-element fault.
type Element struct {
	session *Session
	id      string
}

// Text returns the visible text of the element.
func (e *Element) Text(ctx context.Context) (string, error) {
	body, err := e.session.client.command(ctx, http.MethodGet,
		"/session/"+e.session.id+"/element/"+e.id+"/text", nil)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "value").String(), nil
}
