package errors

import (
	"context"
	"fmt"
	"net/http"
)

// Common error creators for frequent use cases

// NewConfigError creates a configuration error for a tenant
func NewConfigError(tenantID, message string) *BridgeError {
	return New(KindConfig, message).
		WithContext("tenant_id", tenantID).
		WithUserMessage("Tenant configuration error")
}

// NewAuthError creates an authentication error reported by a platform
func NewAuthError(platform string, err error) *BridgeError {
	return Wrap(err, KindAuth, fmt.Sprintf("%s rejected credentials", platform)).
		WithContext("platform", platform).
		WithUserMessage("Authentication failed")
}

// NewDeliveryError classifies a failed platform call by HTTP status code.
// 401/403 -> auth, 429 -> rate limit, 5xx/408 -> transient, 404/410 -> permanent.
func NewDeliveryError(platform, endpoint string, statusCode int, err error) *BridgeError {
	var kind Kind
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = KindAuth
	case statusCode == http.StatusTooManyRequests:
		kind = KindRateLimit
	case statusCode >= 500 || statusCode == http.StatusRequestTimeout:
		kind = KindTransient
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		kind = KindPermanent
	default:
		kind = KindInternal
	}

	return Wrap(err, kind, fmt.Sprintf("%s API call failed", platform)).
		WithContext("platform", platform).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
}

// NewTransportError classifies a transport-level failure. Context deadline
// and cancellation map to transient, matching the timeout policy.
func NewTransportError(platform, endpoint string, err error) *BridgeError {
	return Wrap(err, KindTransient, fmt.Sprintf("%s request failed", platform)).
		WithContext("platform", platform).
		WithContext("endpoint", endpoint)
}

// NewTimeoutError creates a transient timeout error with context
func NewTimeoutError(operation string, err error) *BridgeError {
	if err == nil {
		err = context.DeadlineExceeded
	}
	return Wrap(err, KindTransient, fmt.Sprintf("%s timed out", operation)).
		WithContext("operation", operation)
}

// NewPermanentError marks a delivery target as gone for good.
func NewPermanentError(platform, message string) *BridgeError {
	return New(KindPermanent, message).
		WithContext("platform", platform)
}

// HTTPStatusCode maps error kinds to the status the webhook handler returns.
// Retryable kinds return 502 so the upstream platform redelivers.
func HTTPStatusCode(err error) int {
	switch GetKind(err) {
	case KindConfig:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimit, KindTransient:
		return http.StatusBadGateway
	case KindPermanent:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the standardized error body returned to webhook callers.
type HTTPErrorResponse struct {
	Error struct {
		Kind    Kind        `json:"kind"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response body.
// Sensitive context keys never leave the process.
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{RequestID: requestID}

	if be, ok := err.(*BridgeError); ok {
		response.Error.Kind = be.Kind
		response.Error.Message = GetUserMessage(err)
		if len(be.Context) > 0 {
			public := make(map[string]interface{})
			for k, v := range be.Context {
				if k != "api_key" && k != "token" && k != "secret" {
					public[k] = v
				}
			}
			if len(public) > 0 {
				response.Error.Context = public
			}
		}
	} else {
		response.Error.Kind = KindInternal
		response.Error.Message = GetUserMessage(err)
	}

	return response
}
