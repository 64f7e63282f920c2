package types

import "errors"

var (
	// ErrSchemaViolation is returned when a description file fails validation.
	ErrSchemaViolation = errors.New("description file violates schema")

	// ErrMissingBound is returned when a simulated attribute lacks a required
	// simulation parameter.
	ErrMissingBound = errors.New("missing simulation parameter")

	ErrUnknownType = errors.New("unknown data type")

	// ErrOverrideCollision is returned when an override handler name clashes
	// case-insensitively or is not lowercase.
	ErrOverrideCollision = errors.New("override handler collision")

	ErrQuantityMissing = errors.New("quantity not found")
	ErrUpdate          = errors.New("quantity update failed")

	ErrAttributeRegistration = errors.New("attribute registration failed")
	ErrCommandFailed         = errors.New("command failed")

	// ErrModeViolation is returned by override handlers when a command is
	// not allowed in the current operating mode.
	ErrModeViolation = errors.New("command not allowed in current mode")

	ErrInvalidAction = errors.New("invalid command action")
	ErrNotFound      = errors.New("not found")
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
