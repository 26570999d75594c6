package entitlements

import "errors"

// Typed failures surfaced by the lifecycle engine and its stores. The access
// layer maps each to an external status; none of these is a generic fault.
var (
	ErrNotFound            = errors.New("entitlement not found")
	ErrNotOwned            = errors.New("entitlement belongs to another user")
	ErrNotRenewable        = errors.New("package is not renewable")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTemplateUnavailable = errors.New("package template unavailable")
	ErrGiftNotEnabled      = errors.New("gift packages not enabled for user")
	ErrAlreadyGranted      = errors.New("gift package already granted")
	ErrAlreadyClaimed      = errors.New("free package already claimed in window")
	ErrInvalidEndpoint     = errors.New("invalid endpoint")

	// ErrStoreUnavailable is returned when storage retries are exhausted.
	ErrStoreUnavailable = errors.New("entitlement store unavailable")
)
