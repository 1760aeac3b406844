package token

import "errors"

var (
	// ErrAuthenticationDenied indicates the credential check failed. No store
	// mutation has taken place.
	ErrAuthenticationDenied = errors.New("authentication denied")
	// ErrMalformedRequest indicates a required parameter is missing or cannot
	// be stored. No store mutation has taken place.
	ErrMalformedRequest = errors.New("malformed request")
)
