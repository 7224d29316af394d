package chathub

import "vidmatch/backend/internal/models"

// Error codes reported back to the originating connection. Nothing in this
// package panics or crashes the process on a bad request.
const (
	CodeNotAuthenticated = "not_authenticated"
	CodeInvalidRequest   = "invalid_request"
	CodeNotFound         = "not_found"
	CodeUnauthorized     = "unauthorized"
	CodeConflict         = "conflict"
	CodeOffline          = "offline"
	CodeBusy             = "busy"
)

// HubError is a user-facing request failure. It is delivered as an "error"
// event (or "call_error" for call operations) and never aborts the hub loop.
type HubError struct {
	Code    string
	Message string
}

func (e *HubError) Error() string { return e.Message }

func errNotAuthenticated() *HubError {
	return &HubError{Code: CodeNotAuthenticated, Message: "you are not online"}
}

func errInvalidRequest(msg string) *HubError {
	return &HubError{Code: CodeInvalidRequest, Message: msg}
}

func errNotFound(msg string) *HubError {
	return &HubError{Code: CodeNotFound, Message: msg}
}

func errUnauthorized(msg string) *HubError {
	return &HubError{Code: CodeUnauthorized, Message: msg}
}

func errConflict(msg string) *HubError {
	return &HubError{Code: CodeConflict, Message: msg}
}

func errOffline(msg string) *HubError {
	return &HubError{Code: CodeOffline, Message: msg}
}

// sendError reports a failure to the client that caused it. Call operations
// use the dedicated call_error event so call UIs can react in place.
func sendError(c Client, eventType string, err *HubError) {
	trySend(c, models.Event{Type: eventType, Data: ErrorPayload{
		Code:    err.Code,
		Message: err.Message,
	}})
}
