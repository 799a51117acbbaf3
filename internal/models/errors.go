package models

import "errors"

// Error kinds. Every failure returned by the service layer wraps exactly one
// of these so callers can branch with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation error")
	ErrConnectivity = errors.New("connectivity error")
)
