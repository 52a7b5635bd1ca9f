package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrLastAdmin    = errors.New("auth: at least one active admin is required")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrInvalidCode  = errors.New("auth: invalid or expired reset code")
)
