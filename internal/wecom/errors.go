package wecom

import (
	"errors"
	"fmt"
)

// WeCom API error codes that indicate throttling rather than a bad request.
const errCodeRateLimited = 45009

// WebhookError wraps a failed webhook delivery with classification metadata.
type WebhookError struct {
	// StatusCode is the HTTP status of the response, 0 for transport errors.
	StatusCode int
	// ErrCode is the WeCom API error code from the response body, if any.
	ErrCode int
	// Message is the error description for diagnosis.
	Message string
	// Permanent indicates the delivery will not succeed on retry.
	Permanent bool
}

func (e *WebhookError) Error() string {
	if e.ErrCode != 0 {
		return fmt.Sprintf("wecom: errcode %d: %s", e.ErrCode, e.Message)
	}
	return fmt.Sprintf("wecom: status %d: %s", e.StatusCode, e.Message)
}

// PermanentFailure reports the classification to the relay's retry loop.
func (e *WebhookError) PermanentFailure() bool {
	return e.Permanent
}

// IsPermanent returns true if the error is a permanent failure that must
// not be retried and goes straight to the dead-letter store.
func IsPermanent(err error) bool {
	var we *WebhookError
	if errors.As(err, &we) {
		return we.Permanent
	}
	return false
}

// IsTransient returns true if the error may succeed on retry.
// Unknown errors (timeouts, connection resets) are treated as transient
// to avoid losing messages.
func IsTransient(err error) bool {
	var we *WebhookError
	if errors.As(err, &we) {
		return !we.Permanent
	}
	return true
}

// classifyStatus creates a WebhookError from a non-2xx HTTP response.
// 429 and 5xx are transient; other 4xx are permanent.
func classifyStatus(statusCode int, body string) *WebhookError {
	we := &WebhookError{
		StatusCode: statusCode,
		Message:    body,
	}

	switch {
	case statusCode == 429:
		we.Permanent = false
	case statusCode >= 500:
		we.Permanent = false
	case statusCode >= 400:
		we.Permanent = true
	default:
		// Unexpected 1xx/3xx; retrying is harmless.
		we.Permanent = false
	}

	return we
}

// classifyErrCode creates a WebhookError from a WeCom business error,
// i.e. an HTTP 200 response carrying a nonzero errcode. Rate limiting
// (45009) is transient; everything else is a malformed-request class
// failure the retry loop cannot fix.
func classifyErrCode(statusCode, errCode int, errMsg string) *WebhookError {
	return &WebhookError{
		StatusCode: statusCode,
		ErrCode:    errCode,
		Message:    errMsg,
		Permanent:  errCode != errCodeRateLimited,
	}
}
