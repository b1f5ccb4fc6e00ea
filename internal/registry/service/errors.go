package service

import "errors"

// Sentinel error kinds. Handlers map these to HTTP statuses with errors.Is;
// anything unmatched becomes a 500 with a stable envelope. Transient upstream
// failures are wrapped in ErrUpstream so callers can distinguish "the source
// host is down" from "your request is wrong".
var (
	ErrValidation   = errors.New("invalid request")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("access denied")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream unavailable")
)
