package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/capture"
)

// AnalysisError is a failure reported by the analysis service itself.
type AnalysisError struct {
	Message string
}

func (e *AnalysisError) Error() string {
	if e.Message == "" {
		return "Analysis failed."
	}
	return e.Message
}

// Describe turns an error into the message shown to the operator. Backend
// details are shown verbatim; transport failures get a generic message.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var qe *capture.QualityError
	if errors.As(err, &qe) {
		return qe.Warning()
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	if errors.Is(err, ErrMissingSide) || errors.Is(err, ErrNotEditable) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoCamera) {
		return err.Error()
	}

	if he, ok := backend.AsHTTPError(err); ok {
		if s, ok := he.Detail.(string); ok && s != "" {
			return s
		}
		if s := he.DetailString("error"); s != "" {
			return s
		}
		if s := he.DetailString("message"); s != "" {
			return s
		}
		return fmt.Sprintf("Request failed (status %d).", he.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out."
	}
	return "Request failed. Check the backend connection."
}
