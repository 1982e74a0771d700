package cloudapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotAuthorized is returned when the API rejects the credentials for an operation.
	ErrNotAuthorized = errors.New("not allowed to access the grid API with these credentials")
	// ErrNotAuthenticated is returned when the API doesn't recognize the credentials.
	ErrNotAuthenticated = errors.New("failed to authenticate with the grid API")
	// ErrUnknown is returned on unclassified API failures.
	ErrUnknown = errors.New("an error occurred talking to the grid API")
)

// ErrorResponse represents an error cause by talking to the API
type ErrorResponse struct {
	Response *http.Response `json:"-"`

	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details"`
}

func (e ErrorResponse) Error() string {
	msg := e.Message

	var details []string
	for k, v := range e.Details {
		details = append(details, k+": "+strings.Join(v, ", "))
	}
	if len(details) > 0 {
		msg += "\n " + strings.Join(details, "\n ")
	}

	var code string
	if e.Code > 0 && e.Response != nil {
		code = fmt.Sprintf("%d/E%d", e.Response.StatusCode, e.Code)
	} else if e.Response != nil {
		code = fmt.Sprintf("%d", e.Response.StatusCode)
	} else if e.Code > 0 {
		code = fmt.Sprintf("E%d", e.Code)
	}
	if len(code) > 0 {
		msg = fmt.Sprintf("(%s) %s", code, msg)
	}

	return msg
}
