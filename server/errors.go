package server

import "net/http"

// OAuth protocol error codes. The vocabulary is fixed; every validation
// failure maps to exactly one of these.
const (
	ErrorInvalidRequest          = "invalid_request"
	ErrorUnauthorizedClient      = "unauthorized_client"
	ErrorAccessDenied            = "access_denied"
	ErrorUnsupportedResponseType = "unsupported_response_type"
	ErrorInvalidScope            = "invalid_scope"
	ErrorServerError             = "server_error"
	ErrorInvalidGrant            = "invalid_grant"
	ErrorInvalidClient           = "invalid_client"
	ErrorUnsupportedGrantType    = "unsupported_grant_type"
)

// Error is a protocol-level failure. It is a first-class outcome, not an
// exception: flows return it to the caller, which delivers it as a redirect
// or a JSON body depending on the endpoint.
type Error struct {
	Code        string
	Description string
	URI         string
	Status      int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

func invalidRequest(description string) *Error {
	return &Error{Code: ErrorInvalidRequest, Description: description, Status: http.StatusBadRequest}
}

func unauthorizedClient(description string) *Error {
	return &Error{Code: ErrorUnauthorizedClient, Description: description, Status: http.StatusBadRequest}
}

func accessDenied(description string) *Error {
	return &Error{Code: ErrorAccessDenied, Description: description, Status: http.StatusForbidden}
}

func unsupportedResponseType(description string) *Error {
	return &Error{Code: ErrorUnsupportedResponseType, Description: description, Status: http.StatusBadRequest}
}

func invalidScope(description string) *Error {
	return &Error{Code: ErrorInvalidScope, Description: description, Status: http.StatusBadRequest}
}

func serverError(description string) *Error {
	// Internal detail never crosses the wire.
	return &Error{Code: ErrorServerError, Description: description, Status: http.StatusInternalServerError}
}

func invalidGrant(description string) *Error {
	return &Error{Code: ErrorInvalidGrant, Description: description, Status: http.StatusBadRequest}
}

func invalidClient(description string) *Error {
	return &Error{Code: ErrorInvalidClient, Description: description, Status: http.StatusBadRequest}
}

func unsupportedGrantType(description string) *Error {
	return &Error{Code: ErrorUnsupportedGrantType, Description: description, Status: http.StatusBadRequest}
}
