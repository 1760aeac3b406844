// Package token implements the session token lifecycle: minting, validating,
// superseding and revoking opaque tokens scoped by realm.
//
// Each logical session is two KeyStore entries: a session record keyed by
// (realm, token) and a current-token index keyed by (realm, user). Minting a
// token for a user overwrites the index, which supersedes every earlier token
// of that user without touching their records. Only the token the index
// points at validates as YES.
//
// None of the operations is a transaction. Mint writes the session record
// and then the index; a concurrent Validate can observe the record before
// the index moves, and if the second write fails the record is orphaned and
// validates as NO. WithSerializedUsers narrows the window for concurrent
// writers of the same user but does not make readers see both writes
// atomically.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmcleod/sks/auth"
	"github.com/jmcleod/sks/storage"
)

// Limits on caller-supplied values. Both end up inside store keys, and the
// tightest backend (bbolt) caps keys at 32 KiB.
const (
	MaxUserLength  = 256
	MaxTokenLength = 4096
)

// Status is the outcome of Validate.
type Status string

const (
	// Valid: the token is the user's current token.
	Valid Status = "YES"
	// Superseded: the token was issued but a later mint or a revoke replaced it.
	Superseded Status = "SUPERSEDED"
	// NotFound: the token was never issued in this realm, or was revoked.
	NotFound Status = "NO"
)

// RevokeResult is the outcome of Revoke.
type RevokeResult string

const (
	Revoked RevokeResult = "OK"
	Invalid RevokeResult = "INVALID"
)

// Validation describes a validated token. User and Source are empty when
// Status is NotFound.
type Validation struct {
	Status Status
	User   string
	Source string
}

// Revocation describes the outcome of Revoke. User is set when a session
// record was found.
type Revocation struct {
	Result RevokeResult
	User   string
}

// Issued describes a newly minted or stored token.
type Issued struct {
	Token  string
	User   string
	Source string
}

// Authority runs the token protocol over a KeyStore. It keeps no state of
// its own beyond its collaborators and is safe for concurrent use.
type Authority struct {
	store    storage.KeyStore
	auth     auth.Authenticator
	generate Generator
	locks    userLocks
	logger   *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithAuthenticator sets the credential check used by Mint. Without one,
// every Mint is denied.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(t *Authority) {
		t.auth = a
	}
}

// WithGenerator replaces the token generator.
func WithGenerator(g Generator) Option {
	return func(t *Authority) {
		t.generate = g
	}
}

// WithSerializedUsers makes Mint, Store and Revoke hold a per-(realm, user)
// lock across their index read-modify-write. Concurrent mints for one user
// then leave the index pointing at whichever session record was written
// last, and a revoke cannot interleave with a mint's two writes. Validate is
// never locked.
func WithSerializedUsers(enabled bool) Option {
	return func(t *Authority) {
		if enabled {
			t.locks = newUserLocks()
		} else {
			t.locks = nil
		}
	}
}

// WithLogger sets the logger used for partial-failure diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Authority) {
		t.logger = logger
	}
}

// New creates an Authority over store.
func New(store storage.KeyStore, opts ...Option) *Authority {
	t := &Authority{
		store:    store,
		auth:     auth.DenyAll,
		generate: NewToken,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "token")
	return t
}

// Serialized reports whether per-user serialization is enabled.
func (t *Authority) Serialized() bool {
	return t.locks != nil
}

func (t *Authority) lockUser(realm RealmID, user string) func() {
	if t.locks == nil {
		return func() {}
	}
	return t.locks.lock(realm, user)
}

// Mint verifies password for user and, on success, issues a fresh token with
// the "pam" source that supersedes the user's current token. realmText is
// the undigested realm handed to the authenticator.
func (t *Authority) Mint(ctx context.Context, realm RealmID, realmText, user, password string) (Issued, error) {
	if err := checkUser(user); err != nil {
		return Issued{}, err
	}
	if password == "" {
		return Issued{}, fmt.Errorf("%w: missing password", ErrMalformedRequest)
	}
	ok, err := t.auth.CheckUser(ctx, realmText, user, password)
	if err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrAuthenticationDenied, err)
	}
	if !ok {
		return Issued{}, ErrAuthenticationDenied
	}
	tok, err := t.generate()
	if err != nil {
		return Issued{}, fmt.Errorf("generating token: %w", err)
	}
	return t.issue(ctx, realm, user, tok, SourcePAM)
}

// Store registers a caller-supplied token for user with the "stored" source.
// It supersedes the user's current token exactly like Mint.
func (t *Authority) Store(ctx context.Context, realm RealmID, user, tok string) (Issued, error) {
	if err := checkUser(user); err != nil {
		return Issued{}, err
	}
	if tok == "" {
		return Issued{}, fmt.Errorf("%w: missing token", ErrMalformedRequest)
	}
	if tok == RevokedMarker {
		return Issued{}, fmt.Errorf("%w: token %q is reserved", ErrMalformedRequest, tok)
	}
	if len(tok) > MaxTokenLength {
		return Issued{}, fmt.Errorf("%w: token longer than %d bytes", ErrMalformedRequest, MaxTokenLength)
	}
	return t.issue(ctx, realm, user, tok, SourceStored)
}

// issue writes the session record and then moves the user's index to it.
// There is no rollback: if the index write fails the record stays behind
// and validates as NO.
func (t *Authority) issue(ctx context.Context, realm RealmID, user, tok, source string) (Issued, error) {
	unlock := t.lockUser(realm, user)
	defer unlock()

	rec := record{User: user, Source: source}
	if err := t.store.Put(ctx, sessionKey(realm, tok), rec.encode()); err != nil {
		return Issued{}, fmt.Errorf("writing session record: %w", err)
	}
	if err := t.store.Put(ctx, currentKey(realm, user), tok); err != nil {
		t.logger.Warn("session record orphaned: current-token index not updated",
			slog.String("realm", string(realm)),
			slog.String("user", user),
			slog.String("error", err.Error()))
		return Issued{}, fmt.Errorf("writing current-token index: %w", err)
	}
	return Issued{Token: tok, User: user, Source: source}, nil
}

// Validate reports whether tok is the current token of the user it was
// issued to.
func (t *Authority) Validate(ctx context.Context, realm RealmID, tok string) (Validation, error) {
	if tok == "" {
		return Validation{Status: NotFound}, nil
	}
	v, err := t.store.Get(ctx, sessionKey(realm, tok))
	if errors.Is(err, storage.ErrNotFound) {
		return Validation{Status: NotFound}, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("reading session record: %w", err)
	}
	rec, ok := decodeRecord(v)
	if !ok {
		return Validation{Status: NotFound}, nil
	}
	current, err := t.store.Get(ctx, currentKey(realm, rec.User))
	if errors.Is(err, storage.ErrNotFound) {
		// A record without an index entry is an orphan from a failed mint.
		return Validation{Status: NotFound}, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("reading current-token index: %w", err)
	}
	if current == tok {
		return Validation{Status: Valid, User: rec.User, Source: rec.Source}, nil
	}
	return Validation{Status: Superseded, User: rec.User, Source: rec.Source}, nil
}

// Revoke deletes tok's session record. If tok is still its user's current
// token, the index is overwritten with RevokedMarker rather than deleted, so
// the user's older tokens keep validating as superseded.
func (t *Authority) Revoke(ctx context.Context, realm RealmID, tok string) (Revocation, error) {
	if tok == "" {
		return Revocation{Result: Invalid}, nil
	}
	key := sessionKey(realm, tok)
	v, err := t.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return Revocation{Result: Invalid}, nil
	}
	if err != nil {
		return Revocation{}, fmt.Errorf("reading session record: %w", err)
	}
	rec, ok := decodeRecord(v)
	if !ok {
		// No user to look up; just drop the unusable record.
		if err := t.store.Remove(ctx, key); err != nil {
			return Revocation{}, fmt.Errorf("removing session record: %w", err)
		}
		return Revocation{Result: Revoked}, nil
	}

	unlock := t.lockUser(realm, rec.User)
	defer unlock()

	if err := t.store.Remove(ctx, key); err != nil {
		return Revocation{}, fmt.Errorf("removing session record: %w", err)
	}
	done := Revocation{Result: Revoked, User: rec.User}
	ck := currentKey(realm, rec.User)
	current, err := t.store.Get(ctx, ck)
	if errors.Is(err, storage.ErrNotFound) {
		return done, nil
	}
	if err != nil {
		return Revocation{}, fmt.Errorf("reading current-token index: %w", err)
	}
	if current == tok {
		if err := t.store.Put(ctx, ck, RevokedMarker); err != nil {
			return Revocation{}, fmt.Errorf("writing revoked marker: %w", err)
		}
	}
	return done, nil
}

func checkUser(user string) error {
	if user == "" {
		return fmt.Errorf("%w: missing user", ErrMalformedRequest)
	}
	if strings.ContainsRune(user, '\n') {
		return fmt.Errorf("%w: user contains a newline", ErrMalformedRequest)
	}
	if len(user) > MaxUserLength {
		return fmt.Errorf("%w: user longer than %d bytes", ErrMalformedRequest, MaxUserLength)
	}
	return nil
}
