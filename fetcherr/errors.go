// Package fetcherr defines the failure taxonomy shared by every stage of the
// URL fetch pipeline. Each stage returns a *Error carrying a stable Kind so the
// pipeline can report a machine-readable reason without inspecting messages.
package fetcherr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind is a stable, caller-facing failure reason code.
type Kind string

// Failure kinds reported to callers.
const (
	KindMalformedURL           Kind = "MalformedURLError"
	KindUnsupportedScheme      Kind = "UnsupportedSchemeError"
	KindBlockedHost            Kind = "BlockedHostError"
	KindInvalidTimeout         Kind = "InvalidTimeoutError"
	KindRateLimitExceeded      Kind = "RateLimitExceededError"
	KindTimeout                Kind = "TimeoutError"
	KindUnsupportedContentType Kind = "UnsupportedContentTypeError"
	KindContentTooLarge        Kind = "ContentTooLargeError"
	KindNetwork                Kind = "NetworkError"
	KindExtraction             Kind = "ExtractionError"
	KindHTTPStatus             Kind = "HTTPStatusError"
	KindInternal               Kind = "InternalError"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Message string

	// StatusCode is the HTTP status received before the failure, if any.
	StatusCode int
	// ContentType is the declared response content type, if one was received.
	ContentType string
	// RetryAfter hints when a rate-limited call may be retried.
	RetryAfter time.Duration

	err error
}

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. The message is prefixed with msg when set.
func Wrap(kind Kind, err error, msg string) *Error {
	text := msg
	if err != nil {
		if text == "" {
			text = err.Error()
		} else {
			text = msg + ": " + err.Error()
		}
	}
	return &Error{Kind: kind, Message: text, err: err}
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

// WithStatus records response metadata known at the time of failure.
func (e *Error) WithStatus(statusCode int, contentType string) *Error {
	e.StatusCode = statusCode
	e.ContentType = contentType
	return e
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	fe, ok := As(err)
	return ok && fe.Kind == kind
}

// KindOf classifies any error. Context deadlines map to KindTimeout and
// unclassified errors to KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Classify converts any error into a *Error, preserving an existing
// classification.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := As(err); ok {
		return fe
	}
	return Wrap(KindOf(err), err, "")
}
