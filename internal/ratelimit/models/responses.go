package models

import "time"

// RateLimitExceededResponse is the 429 body.
type RateLimitExceededResponse struct {
	Error   string `json:"error"` // always "Too Many Requests"
	Message string `json:"message"`
}

// TierStatus is a read-only view of one tier's window.
type TierStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// StatusResponse reports current usage for an authenticated caller.
type StatusResponse struct {
	Company  TierStatus `json:"company"`
	User     TierStatus `json:"user"`
	IP       TierStatus `json:"ip"`
	Fallback bool       `json:"fallback"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	SharedStore string `json:"shared_store"` // "up" or "down"
}

// ErrorResponse is the generic non-429 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
