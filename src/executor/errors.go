package executor

import "errors"

var (
	// Config validation errors
	ErrEngineRequired  = errors.New("engine is required")
	ErrVendorsRequired = errors.New("vendor registry is required")
	ErrAppRequired     = errors.New("app is required")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrAppMismatch     = errors.New("session belongs to another app")
	ErrNoStorage       = errors.New("transcript storage is disabled")
)
