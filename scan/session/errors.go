package session

import (
	"fmt"
	"strings"

	"returnscan/scan/inspection"
)

// ValidationError reports locally failed draft validation. No network call was
// made; the draft stays open for correction.
type ValidationError struct {
	Fields []inspection.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// RejectedError reports server-side re-validation failure after local
// validation passed, e.g. a required quantity raised concurrently elsewhere.
type RejectedError struct {
	Message string
	Fields  []inspection.FieldError
}

func (e *RejectedError) Error() string {
	if len(e.Fields) == 0 {
		return "inspection rejected: " + e.Message
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return "inspection rejected: " + strings.Join(msgs, "; ")
}

// NetworkError reports a transport failure. Retries are user-initiated
// re-submissions of the same draft; nothing is retried automatically.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// CompletionError reports that the order-closing call failed after 100% was
// reached. Progress stays at 100 and completion can be retried explicitly.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completing return scan failed: %v", e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}
