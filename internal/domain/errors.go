package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoSigner         = errors.New("no signer configured")
	ErrNoSettler        = errors.New("no settler configured")
	ErrPriceUnavailable = errors.New("price feed unavailable")
	ErrLockHeld         = errors.New("lock already held")
)
