package domain

import "errors"

var (
	ErrValidation           = errors.New("validation error")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyResolved      = errors.New("already resolved")
	ErrAlreadyFinal         = errors.New("already final")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidState         = errors.New("invalid state")
	ErrExternalCollaborator = errors.New("external collaborator failure")
)
