// Package auth verifies user credentials on behalf of the token authority.
//
// The authority only mints credential-backed tokens after an Authenticator
// accepts the (realm, user, password) triple. Any error or non-match is a
// denial; the authority never distinguishes the two to its callers.
package auth

import "context"

// Authenticator checks a password against a credential source.
type Authenticator interface {
	// CheckUser reports whether password is valid for user in realm. realm is
	// the caller-supplied realm text, not its digest.
	CheckUser(ctx context.Context, realm, user, password string) (bool, error)
}

// Func adapts an ordinary function to the Authenticator interface.
type Func func(ctx context.Context, realm, user, password string) (bool, error)

func (f Func) CheckUser(ctx context.Context, realm, user, password string) (bool, error) {
	return f(ctx, realm, user, password)
}

type denyAll struct{}

func (denyAll) CheckUser(context.Context, string, string, string) (bool, error) {
	return false, nil
}

// DenyAll rejects every credential. It is the authenticator used when no
// credential source is configured.
var DenyAll Authenticator = denyAll{}
