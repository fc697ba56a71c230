package worker

import "fmt"

// Code classifies the outcome of a worker run.
type Code int

const (
	// CodeNoop means the worker did not apply to the job (for
	// example, no usable credential stanza survived ACL reduction).
	CodeNoop Code = iota
	// CodeDone means the worker completed its part of the job.
	CodeDone
	// CodeDeferred means the job should be retried later, typically
	// because the device could not be reached.
	CodeDeferred
	// CodeErrored means the worker failed in a way a retry will not
	// fix. The failure is logged and does not spread to siblings.
	CodeErrored
)

func (c Code) String() string {
	switch c {
	case CodeDone:
		return "done"
	case CodeDeferred:
		return "deferred"
	case CodeErrored:
		return "errored"
	default:
		return "noop"
	}
}

// Status is the tri-state outcome a worker reports back to the
// dispatcher: success with a message, deferred retry with a reason, or
// failure.
type Status struct {
	Code    Code
	Message string
}

// Done builds a success status.
func Done(format string, args ...any) Status {
	return Status{Code: CodeDone, Message: fmt.Sprintf(format, args...)}
}

// Defer builds a retry-later status.
func Defer(format string, args ...any) Status {
	return Status{Code: CodeDeferred, Message: fmt.Sprintf(format, args...)}
}

// Errored builds a failure status.
func Errored(format string, args ...any) Status {
	return Status{Code: CodeErrored, Message: fmt.Sprintf(format, args...)}
}

// Noop builds a not-applicable status.
func Noop(format string, args ...any) Status {
	return Status{Code: CodeNoop, Message: fmt.Sprintf(format, args...)}
}

func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}
