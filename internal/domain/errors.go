package domain

import "errors"

// Validation errors abort the triggering event with no state applied.
var (
	ErrInvalidPrice      = errors.New("invalid price")
	ErrRatioTooLarge     = errors.New("price ratio too large")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Authorization errors are rejected before any side effect.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrZeroAddress  = errors.New("zero address")
)

var (
	ErrPaused           = errors.New("protection paused")
	ErrPositionNotFound = errors.New("position not found")
)

// IsValidation reports whether err is (or wraps) one of the validation errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrRatioTooLarge) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCiphertext)
}

// IsAuthorization reports whether err is (or wraps) an authorization failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrZeroAddress)
}
