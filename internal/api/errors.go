package api

import "fmt"

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Status    int
	Kind      string
	ErrorCode int
	Message   string
	Retryable bool
	Dismiss   Dismiss
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Kind != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}

func errorFromBody(status int, body *ErrorBody) *APIError {
	if body == nil {
		return &APIError{Status: status}
	}
	return &APIError{
		Status:    status,
		Kind:      body.Kind,
		ErrorCode: body.Code,
		Message:   body.Message,
		Retryable: body.Retryable,
		Dismiss:   body.Dismiss,
	}
}
