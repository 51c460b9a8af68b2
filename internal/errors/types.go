package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes a bridge error. Retry policy is a pure function of Kind,
// decided at the adapter boundary, never by matching on error text.
type Kind string

const (
	// KindConfig: tenant missing or credentials undecryptable. Fatal for the
	// event, never retried.
	KindConfig Kind = "CONFIG"
	// KindAuth: credential rejected by the platform. Surfaced so the caller
	// can trigger reauthentication; not retried by the router.
	KindAuth Kind = "AUTH"
	// KindRateLimit: platform throttled the call. Retried with backoff.
	KindRateLimit Kind = "RATE_LIMIT"
	// KindTransient: network failure or timeout. Retried with backoff.
	KindTransient Kind = "TRANSIENT_NETWORK"
	// KindPermanent: recipient or bot no longer reachable. Not retried;
	// triggers a tenant-deactivation signal.
	KindPermanent Kind = "PERMANENT_DELIVERY"
	// KindInternal: anything that escaped classification.
	KindInternal Kind = "INTERNAL"
)

// BridgeError is the structured error every component of the bridge returns
// across package boundaries.
type BridgeError struct {
	Kind        Kind                   `json:"kind"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *BridgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *BridgeError) WithContext(key string, value interface{}) *BridgeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets a user-friendly message
func (e *BridgeError) WithUserMessage(msg string) *BridgeError {
	e.UserMessage = msg
	return e
}

// New creates a new BridgeError
func New(kind Kind, message string) *BridgeError {
	return &BridgeError{
		Kind:    kind,
		Message: message,
	}
}

// Wrap wraps an existing error, preserving the cause chain
func Wrap(err error, kind Kind, message string) *BridgeError {
	return &BridgeError{
		Kind:    kind,
		Message: message,
		Cause:   err,
	}
}

// IsRetryable reports whether the router may retry the failed call.
// Only rate-limit and transient-network failures qualify.
func IsRetryable(err error) bool {
	switch GetKind(err) {
	case KindRateLimit, KindTransient:
		return true
	}
	return false
}

// GetKind extracts the kind from an error, walking the wrap chain.
// Unclassified errors are internal.
func GetKind(err error) Kind {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsKind reports whether the error (or any wrapped cause) has the given kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// GetUserMessage extracts a user-friendly message from an error
func GetUserMessage(err error) string {
	var be *BridgeError
	if errors.As(err, &be) && be.UserMessage != "" {
		return be.UserMessage
	}
	return "An internal error occurred"
}
