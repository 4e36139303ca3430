// Package errors defines sentinel errors shared across vault-share.
package errors

import "errors"

// Local state errors.
var (
	ErrNoteNotFound  = errors.New("note not found in vault")
	ErrNotShared     = errors.New("note has not been shared")
	ErrNoClientID    = errors.New("client identifier not initialized")
	ErrMissingAPIKey = errors.New("API key not configured")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
