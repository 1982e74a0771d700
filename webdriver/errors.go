package webdriver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Error codes of interest from the W3C WebDriver spec.
const (
	errCodeStaleElement  = "stale element reference"
	errCodeNoSuchElement = "no such element"
)

// Legacy JSON wire protocol status codes for the same conditions.
const (
	legacyStatusNoSuchElement = 7
	legacyStatusStaleElement  = 10
)

// CommandError is a protocol-level error returned by the remote end.
type CommandError struct {
	HTTPStatus   int
	Code         string // W3C error string, e.g. "stale element reference"
	LegacyStatus int    // old JSON wire protocol status, 0 if absent
	Message      string
}

func (e *CommandError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Code != "":
		return e.Code
	case e.Message != "":
		return e.Message
	}
	return fmt.Sprintf("webdriver command failed with HTTP %d", e.HTTPStatus)
}

// checkResponse turns an error response body into a *CommandError. The
// W3C protocol reports errors with non-2xx statuses; the legacy wire
// protocol responds 200 with a non-zero "status" field instead, so both
// have to be inspected.
func checkResponse(httpStatus int, body []byte) *CommandError {
	legacyStatus := int(gjson.GetBytes(body, "status").Int())
	if httpStatus >= http.StatusOK && httpStatus < 300 && legacyStatus == 0 {
		return nil
	}

	cmdErr := &CommandError{
		HTTPStatus:   httpStatus,
		Code:         gjson.GetBytes(body, "value.error").String(),
		LegacyStatus: legacyStatus,
		Message:      gjson.GetBytes(body, "value.message").String(),
	}
	if cmdErr.Message == "" {
		cmdErr.Message = gjson.GetBytes(body, "message").String()
	}
	return cmdErr
}

// IsStaleElement reports whether err is the transient stale-element
// fault that occurs when a previously located DOM node was replaced.
func IsStaleElement(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return cmdErr.Code == errCodeStaleElement || cmdErr.LegacyStatus == legacyStatusStaleElement
}

// isNoSuchElement reports whether err just means the element isn't in
// the DOM (yet), which the element wait treats as "keep polling".
func isNoSuchElement(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return cmdErr.Code == errCodeNoSuchElement || cmdErr.LegacyStatus == legacyStatusNoSuchElement
}
