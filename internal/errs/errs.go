// Package errs defines the structured error type the control plane uses
// to classify failures: bad weight container, truncated read,
// insufficient DDR, memory init failure, device unavailable, queue full,
// invalid command.
package errs

import (
	"errors"
	"fmt"
)

// Code is a high-level error category, surfaced to logs and to callers
// that need to branch on failure class rather than a specific message.
type Code string

const (
	CodeBadContainer      Code = "bad container"
	CodeTruncated         Code = "truncated container"
	CodeInsufficientDDR   Code = "insufficient ddr"
	CodeMemoryInitFailure Code = "memory init failure"
	CodeDeviceUnavailable Code = "device unavailable"
	CodeQueueFull         Code = "queue full"
	CodeInvalidCommand    Code = "invalid command"
)

// Error is a structured firmware error: the operation that failed, an
// optional task id, a high-level Code, a human-readable message, and the
// wrapped cause.
type Error struct {
	Op        string
	TaskID    uint32
	HasTaskID bool
	Code      Code
	Msg       string
	Inner     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Op != "" && e.HasTaskID:
		return fmt.Sprintf("%s: %s (task_id=%d)", e.Op, msg, e.TaskID)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Inner }

// Is reports equality by Code, so callers can test with
// errors.Is(err, &errs.Error{Code: errs.CodeQueueFull}).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// New constructs an Error carrying no wrapped cause.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// Wrap annotates an existing error with an operation name and code. It
// returns nil if err is nil, so it can be used in a direct return
// position.
func Wrap(op string, code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Code: code, Msg: err.Error(), Inner: err}
}

// WithTask attaches a task id to e and returns it, for call sites that
// want to annotate a runtime failure with the task it occurred during.
func WithTask(e *Error, taskID uint32) *Error {
	e.TaskID = taskID
	e.HasTaskID = true
	return e
}

// IsCode reports whether err is (or wraps) an *Error with the given Code.
func IsCode(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}
