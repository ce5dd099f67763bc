package ports

import "errors"

// Standard application-level errors.
// The invalid-input errors signal contract violations by the caller (bugs),
// never expected business outcomes; business rejections are returned as
// structured results instead. Adapters wrap underlying infrastructure errors
// with the storage errors below.
var (
	// Invalid-input (contract) errors
	ErrInvalidTradeValue = errors.New("trade value must be non-negative")
	ErrInvalidPrice      = errors.New("price must be a positive finite number")
	ErrInvalidRate       = errors.New("rate must be a non-negative finite number")

	// General errors
	ErrConfigurationError = errors.New("invalid or missing configuration")
	ErrNotFound           = errors.New("resource not found")

	// Storage errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
