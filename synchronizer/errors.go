package synchronizer

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrBusy is returned when a request is started while another is still outstanding
	ErrBusy = errors.New("another request is in progress")

	// ErrUnknownRecord is returned when editing a record that is not in the local list
	ErrUnknownRecord = errors.New("record is not in the local list")
)

// ValidationError reports draft fields that failed the presence checks.
// It is raised before any request is sent.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return e.Fields[0] + " is required"
	}
	return strings.Join(e.Fields, ", ") + " are required"
}

// TransportError reports a failed request: either the request could not be
// completed (Err is set) or the server answered with a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
	}
	msg := fmt.Sprintf("failed to %s: server responded %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
