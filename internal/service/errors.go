package service

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyPurchased  = errors.New("already_purchased")
	ErrAlreadyRated      = errors.New("already_rated")
	ErrNotPurchased      = errors.New("not_purchased")
	ErrInvalidScore      = errors.New("score must be between 1 and 5")
	ErrPurchaseInFlight  = errors.New("purchase flow already in flight")
	ErrOwnProduct        = errors.New("cannot buy your own product")
	ErrPrincipalRequired = errors.New("ledger principal is required")
)
