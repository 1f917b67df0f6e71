package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// The pipeline's failure taxonomy. Stage code classifies every error into
// one of these so the orchestrator can apply a uniform policy:
//
//   - TransientError: retry with backoff.
//   - ConfigurationError: fail the job immediately, no retry.
//   - ValidationError: reject the candidate/response locally, never a job error.
//   - PartialDataError: complete the job in a degraded failed_partial state.

// TransientError wraps an error that is safe to retry (429, 5xx, network
// timeout, model temporarily unavailable).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// ConfigurationError marks invalid pipeline input (missing objective text,
// empty keyword set). Fatal to the job, never retried.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return e.Err.Error() }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps an error as a fatal configuration problem.
func NewConfigurationError(err error) *ConfigurationError {
	return &ConfigurationError{Err: err}
}

// ValidationError marks content that failed a rule check. Contained at the
// call site: logged and dropped, never propagated as a job failure.
type ValidationError struct {
	Err    error
	Reason string
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps an error as a local content-rule failure.
func NewValidationError(err error, reason string) *ValidationError {
	return &ValidationError{Err: err, Reason: reason}
}

// PartialDataError marks a stage that produced less than the minimum viable
// output. The job finishes as failed_partial with whatever was produced.
type PartialDataError struct {
	Err error
}

func (e *PartialDataError) Error() string { return e.Err.Error() }
func (e *PartialDataError) Unwrap() error { return e.Err }

// NewPartialDataError wraps an error as a degraded-but-usable outcome.
func NewPartialDataError(err error) *PartialDataError {
	return &PartialDataError{Err: err}
}

// IsConfiguration reports whether the error chain contains a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsValidation reports whether the error chain contains a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPartialData reports whether the error chain contains a PartialDataError.
func IsPartialData(err error) bool {
	var pe *PartialDataError
	return errors.As(err, &pe)
}

// IsTransient reports whether the error (or anything in its chain) is a
// TransientError, or matches common transient network failure patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// The other taxonomy classes are never retried, even when a network
	// error sits underneath them.
	if IsConfiguration(err) || IsValidation(err) || IsPartialData(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped HTTP client errors lose their type; fall back to message checks.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether the HTTP status code indicates a
// server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
