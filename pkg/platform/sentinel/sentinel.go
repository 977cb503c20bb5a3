package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so callers can decide how to degrade:
// - ErrUnavailable: the shared store is unreachable or returned an error
// - ErrInvalidToken: a session token failed signature or claim validation
// - ErrMisconfigured: a required secret or setting is missing
// - ErrInvalidInput: a caller passed an argument the operation cannot accept
//
// None of these are fatal to the process.
var (
	ErrUnavailable   = errors.New("unavailable")
	ErrInvalidToken  = errors.New("invalid token")
	ErrMisconfigured = errors.New("misconfigured")
	ErrInvalidInput  = errors.New("invalid input")
)
