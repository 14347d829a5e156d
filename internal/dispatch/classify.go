package dispatch

import (
	"errors"
	"fmt"
	"net"
	"strings"

	gateway "github.com/eugener/aigateway/internal"
)

// ErrorClass is the upstream failure taxonomy used for dispatch accounting
// and the provider/model-test probe (spec.md §4.6), distinct from the
// teacher's circuit-breaker weight classification.
type ErrorClass string

const (
	ClassTimeout             ErrorClass = "timeout"
	ClassInvalidPath         ErrorClass = "invalid_path"
	ClassModelNotFound       ErrorClass = "model_not_found"
	ClassInsufficientBalance ErrorClass = "insufficient_balance"
	ClassOther               ErrorClass = "other"
)

// ClassifyError maps a raw upstream error to its ErrorClass and wraps it in
// gateway.ErrProviderError so callers can still errors.Is against the
// gateway-level taxonomy while server handlers branch on the specific class
// via Class.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	class := classify(err)
	return &classifiedError{class: class, err: fmt.Errorf("%w: %s", gateway.ErrProviderError, err)}
}

type classifiedError struct {
	class ErrorClass
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Class returns the ErrorClass, or ClassOther if err was not produced by
// ClassifyError.
func Class(err error) ErrorClass {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	return ClassOther
}

func classify(err error) ErrorClass {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	var statusErr interface{ HTTPStatus() int }
	if errors.As(err, &statusErr) {
		body := strings.ToLower(err.Error())
		switch statusErr.HTTPStatus() {
		case 404:
			if strings.Contains(body, "model not found") || strings.Contains(body, "model_not_found") {
				return ClassModelNotFound
			}
			return ClassInvalidPath
		case 402:
			return ClassInsufficientBalance
		}
		if strings.Contains(body, "insufficient") || strings.Contains(body, "balance") {
			return ClassInsufficientBalance
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return ClassTimeout
	}
	return ClassOther
}
