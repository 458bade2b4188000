package models

import "errors"

// Domain errors. All are recoverable conditions surfaced to the caller;
// handlers translate them to HTTP statuses. ErrStorage is the one
// non-domain kind: it means an operation was rejected because it could not
// be durably recorded, not because a business rule failed.
var (
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidTerm        = errors.New("loan term must be greater than zero")
	ErrInvalidPrincipal   = errors.New("loan principal must be greater than zero")
	ErrInvalidRate        = errors.New("interest rate must not be negative")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateUser      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserBlocked        = errors.New("user is blocked")
	ErrSameAccount        = errors.New("source and destination accounts are the same")
	ErrInvalidTransition  = errors.New("loan is already decided")
	ErrStorage            = errors.New("storage failure")
)
