package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmcleod/sks/storage"
	"github.com/jmcleod/sks/token"
)

// lines joins fields into a newline-terminated response body.
func lines(fields ...string) string {
	return strings.Join(fields, "\n") + "\n"
}

// fail logs err and writes the matching error response.
func (a *API) fail(w http.ResponseWriter, r *http.Request, user string, err error) {
	switch {
	case errors.Is(err, token.ErrAuthenticationDenied):
		a.audit.logFailure(AuditCredentialDenied, r, user, err)
	case errors.Is(err, token.ErrMalformedRequest):
		a.audit.logFailure(AuditRequestRejected, r, user, err)
	case storage.IsFault(err):
		a.audit.logFailure(AuditStoreFault, r, user, err)
	default:
		a.audit.logFailure(AuditInternalError, r, user, err)
	}
	mapError(w, err)
}

// Validate handles GET /valid.
func (a *API) Validate(w http.ResponseWriter, r *http.Request) {
	realm := realmFromContext(r.Context())
	tok := r.URL.Query().Get("token")

	v, err := a.tokens.Validate(r.Context(), realm.id, tok)
	if err != nil {
		a.fail(w, r, "", err)
		return
	}
	a.audit.logOutcome(AuditTokenValidated, r, v.User, string(v.Status))
	if v.Status == token.NotFound {
		writeText(w, http.StatusOK, lines(string(v.Status)))
		return
	}
	writeText(w, http.StatusOK, lines(string(v.Status), v.User, v.Source))
}

// Revoke handles GET /revoke.
func (a *API) Revoke(w http.ResponseWriter, r *http.Request) {
	realm := realmFromContext(r.Context())
	tok := r.URL.Query().Get("token")

	res, err := a.tokens.Revoke(r.Context(), realm.id, tok)
	if err != nil {
		a.fail(w, r, "", err)
		return
	}
	a.audit.logOutcome(AuditTokenRevoked, r, res.User, string(res.Result))
	writeText(w, http.StatusOK, lines(string(res.Result)))
}

// StoreToken handles GET /stored_token.
func (a *API) StoreToken(w http.ResponseWriter, r *http.Request) {
	realm := realmFromContext(r.Context())
	q := r.URL.Query()
	user, tok := q.Get("user"), q.Get("token")
	if user == "" || tok == "" {
		a.audit.logFailure(AuditRequestRejected, r, user, errMissing("user or token"))
		writeText(w, http.StatusBadRequest, "ERR: missing user or token\n")
		return
	}

	issued, err := a.tokens.Store(r.Context(), realm.id, user, tok)
	if err != nil {
		a.fail(w, r, user, err)
		return
	}
	a.audit.logOutcome(AuditTokenStored, r, issued.User, issued.Source)
	writeText(w, http.StatusOK, lines(issued.Token, issued.User, issued.Source))
}

// MintToken handles GET /pam_token.
func (a *API) MintToken(w http.ResponseWriter, r *http.Request) {
	realm := realmFromContext(r.Context())
	q := r.URL.Query()
	user, pwd := q.Get("user"), q.Get("pwd")
	if user == "" || pwd == "" {
		a.audit.logFailure(AuditRequestRejected, r, user, errMissing("user or pwd"))
		writeText(w, http.StatusBadRequest, "ERR: missing user or pwd\n")
		return
	}

	client := clientAddr(r)
	if blocked, retryAfter := a.rateLimiter.check(realm.id, user, client); blocked {
		a.audit.log(slog.LevelWarn, AuditRateLimited, r, slog.String("user", user))
		writeRateLimited(w, retryAfter)
		return
	}

	issued, err := a.tokens.Mint(r.Context(), realm.id, realm.text, user, pwd)
	if errors.Is(err, token.ErrAuthenticationDenied) {
		a.rateLimiter.recordFailure(realm.id, user, client)
	}
	if err != nil {
		a.fail(w, r, user, err)
		return
	}
	a.rateLimiter.recordSuccess(realm.id, user, client)
	a.audit.logOutcome(AuditTokenMinted, r, issued.User, issued.Source)
	writeText(w, http.StatusOK, lines(issued.Token, issued.User, issued.Source))
}

func errMissing(what string) error {
	return errors.New("missing " + what)
}
