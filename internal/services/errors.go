package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrPrecondition = errors.New("precondition failed")
	ErrProcessing   = errors.New("processing error")
	ErrTimeout      = errors.New("timeout")
	ErrPersistence  = errors.New("persistence error")
	ErrExternalTool = errors.New("external tool error")
)

// ErrorKind classifies a pipeline error for logging and metrics labels.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindPrecondition ErrorKind = "precondition"
	KindProcessing   ErrorKind = "processing"
	KindTimeout      ErrorKind = "timeout"
	KindPersistence  ErrorKind = "persistence"
	KindUnknown      ErrorKind = "unknown"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrProcessing
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error to its classification. Timeouts are reported ahead of the
// processing marker they usually travel with.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrProcessing), errors.Is(err, ErrExternalTool):
		return KindProcessing
	default:
		return KindUnknown
	}
}

// FailureMessage returns the text recorded on a failed job. Timeouts collapse
// to the bare word so pollers can match on it.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrTimeout) {
		return ErrTimeout.Error()
	}
	return strings.TrimSpace(err.Error())
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
