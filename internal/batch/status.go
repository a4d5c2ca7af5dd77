package batch

import (
	"fmt"
	"strings"
)

// Status is the tagged result of one independent work item.
type Status int

const (
	StatusSuccess Status = iota
	StatusMissing
	StatusFailure
	// StatusSkipped marks items never started because the run was cancelled.
	StatusSkipped
)

// String returns the lowercase name of the status
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusMissing:
		return "missing"
	case StatusFailure:
		return "failure"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return StatusSuccess, nil
	case "missing":
		return StatusMissing, nil
	case "failure", "error":
		return StatusFailure, nil
	case "skipped":
		return StatusSkipped, nil
	default:
		return StatusFailure, fmt.Errorf("invalid status: %s (valid: success, missing, failure, skipped)", s)
	}
}

// Outcome is what a worker reports for one item. Name identifies the item in
// diagnostics; Reason is set for failures.
type Outcome struct {
	Name   string
	Status Status
	Reason string
}

// Success returns a successful outcome for name.
func Success(name string) Outcome {
	return Outcome{Name: name, Status: StatusSuccess}
}

// Missing returns an outcome for an item whose companion input is absent.
func Missing(name string) Outcome {
	return Outcome{Name: name, Status: StatusMissing}
}

// Failure returns a failed outcome carrying err's message.
func Failure(name string, err error) Outcome {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{Name: name, Status: StatusFailure, Reason: reason}
}

// String renders the outcome as a single diagnostic line.
func (o Outcome) String() string {
	if o.Status == StatusFailure {
		return fmt.Sprintf("%s: %s", o.Name, o.Reason)
	}
	return fmt.Sprintf("%s: %s", o.Name, o.Status)
}
