package errors

import (
	"errors"

	"github.com/forumd-dev/forumd/internal/protocol"
)

// Default error is an internal failure answered with a generic FAIL at the
// dispatcher level; domain errors that map to a specific wire status use
// ErrorWithStatus.
type ErrorWithStatus struct {
	Message string
	Status  string
}

func (e *ErrorWithStatus) Error() string {
	return e.Message
}

func New(status, message string) *ErrorWithStatus {
	return &ErrorWithStatus{Message: message, Status: status}
}

// StatusOf extracts the wire status carried by err, or FAIL when err carries
// none.
func StatusOf(err error) string {
	var e *ErrorWithStatus
	if errors.As(err, &e) {
		return e.Status
	}
	return protocol.StatusFail
}

// Common domain errors. All carry the wire status the dispatcher answers with.
var (
	ErrThreadExists  = New(protocol.StatusExists, "thread already exists")
	ErrNoThread      = New(protocol.StatusNoThread, "thread does not exist")
	ErrNoMessage     = New(protocol.StatusNoMessage, "message does not exist")
	ErrForbidden     = New(protocol.StatusForbidden, "caller is not the author")
	ErrFileNotFound  = New(protocol.StatusFileNotFound, "file does not exist")
	ErrNotOnline     = New(protocol.StatusNotOnline, "user is not online")
	ErrCorrupted     = New(protocol.StatusCorrupted, "transferred size mismatch")
	ErrAlreadyOnline = New(protocol.StatusOnline, "user already logged in")
	ErrAuthRequired  = New(protocol.StatusAuthRequired, "authentication required")
	ErrUserExists    = New(protocol.StatusFail, "user already registered")
)
