package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrStreamInactive     = errors.New("stream is inactive")
	ErrVerificationFailed = errors.New("verification failed")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrAlreadyAssigned    = errors.New("opportunity already assigned")
)
