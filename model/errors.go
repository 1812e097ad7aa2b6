package model

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrorKind classifies failures so callers can decide between reporting,
// retrying and stopping.
type ErrorKind string

const (
	KindValidation            ErrorKind = "validation"
	KindCapabilityUnavailable ErrorKind = "capability_unavailable"
	KindTransient             ErrorKind = "transient"
	KindPermanent             ErrorKind = "permanent"
	KindDataIntegrity         ErrorKind = "data_integrity"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrJudgeDisabled = errors.New("relevance judge is not configured")
	ErrNoEmbedder    = errors.New("embedding service is not configured")
)

// Error is a classified error. Message is safe to show to clients for
// validation and capability errors, Err carries the detail for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func NewCapabilityUnavailableError(message string, err error) error {
	return &Error{Kind: KindCapabilityUnavailable, Message: message, Err: err}
}

func NewTransientError(message string, err error) error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

func NewPermanentError(message string, err error) error {
	return &Error{Kind: KindPermanent, Message: message, Err: err}
}

func NewDataIntegrityError(message string, err error) error {
	return &Error{Kind: KindDataIntegrity, Message: message, Err: err}
}

// KindOf returns the kind of the first classified error in the chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

func IsCapabilityUnavailable(err error) bool {
	return KindOf(err) == KindCapabilityUnavailable
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func IsPermanent(err error) bool {
	return KindOf(err) == KindPermanent
}

func IsDataIntegrity(err error) bool {
	return KindOf(err) == KindDataIntegrity
}

// ClientMessage returns the message shown to API and CLI users. Everything
// that is not a validation or capability problem collapses to one generic text.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && (e.Kind == KindValidation || e.Kind == KindCapabilityUnavailable) {
		return e.Message
	}
	return "Something went wrong while searching. Please try again."
}

var statusCodePattern = regexp.MustCompile(`status code:?\s*(\d{3})\b`)

// statusCode returns the HTTP status the langchaingo clients put into their
// error text ("API returned unexpected status code: 429: ...").
func statusCode(msg string) (int, bool) {
	m := statusCodePattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	return code, err == nil
}

// ClassifyServiceError wraps an error returned by an external service as
// transient or permanent. Already classified errors are returned unchanged.
// The HTTP status decides when the error carries one: 408, 409, 425, 429 and
// 5xx are transient, except a 429 for an exhausted quota, other 4xx are
// permanent. Without a status the langchaingo error codes decide. Anything
// unrecognised is transient.
func ClassifyServiceError(service string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(service+" timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTransientError(service+" timed out", err)
	}

	msg := strings.ToLower(err.Error())
	if code, ok := statusCode(msg); ok {
		switch {
		case code == http.StatusTooManyRequests && strings.Contains(msg, "quota"):
			return NewPermanentError(service+" quota is exhausted", err)
		case code == http.StatusRequestTimeout, code == http.StatusConflict, code == http.StatusTooEarly,
			code == http.StatusTooManyRequests, code >= 500:
			return NewTransientError(service+" is temporarily unavailable", err)
		case code >= 400:
			return NewPermanentError(service+" rejected the request", err)
		}
	}

	mapped := openai.MapError(err)
	var llmErr *llms.Error
	if errors.As(mapped, &llmErr) && llmErr.Code == llms.ErrCodeResourceNotFound {
		return NewPermanentError(service+" rejected the request", err)
	}
	switch {
	case llms.IsRateLimitError(mapped), llms.IsTimeoutError(mapped), llms.IsProviderUnavailableError(mapped):
		return NewTransientError(service+" is temporarily unavailable", err)
	case llms.IsAuthenticationError(mapped), llms.IsInvalidRequestError(mapped), llms.IsQuotaExceededError(mapped),
		llms.IsTokenLimitError(mapped), llms.IsContentFilterError(mapped), llms.IsNotImplementedError(mapped):
		return NewPermanentError(service+" rejected the request", err)
	}
	return NewTransientError(service+" call failed", err)
}
