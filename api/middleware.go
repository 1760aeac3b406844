package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jmcleod/sks/token"
)

type contextKey int

const realmKey contextKey = iota

type realmInfo struct {
	text string
	id   token.RealmID
}

// RealmMiddleware rejects requests without a realm and stores the realm and
// its digest on the request context.
func (a *API) RealmMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		realm := r.URL.Query().Get("realm")
		if realm == "" {
			a.audit.logFailure(AuditRequestRejected, r, r.URL.Query().Get("user"), errMissing("realm"))
			writeText(w, http.StatusBadRequest, "ERR: missing realm\n")
			return
		}
		ctx := context.WithValue(r.Context(), realmKey, realmInfo{
			text: realm,
			id:   token.DigestRealm(realm),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func realmFromContext(ctx context.Context) realmInfo {
	ri, _ := ctx.Value(realmKey).(realmInfo)
	return ri
}

// clientAddr returns the host part of the peer address. Forwarding headers
// are ignored: the address keys credential throttling and must not be
// chosen by the client.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestLogger logs one line per request. Only the path is logged: query
// strings carry tokens and passwords.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("request_id", chimw.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
