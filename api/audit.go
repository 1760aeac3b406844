package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the token operation being logged.
type AuditEvent string

const (
	AuditTokenValidated   AuditEvent = "token_validated"
	AuditTokenRevoked     AuditEvent = "token_revoked"
	AuditTokenStored      AuditEvent = "token_stored"
	AuditTokenMinted      AuditEvent = "token_minted"
	AuditCredentialDenied AuditEvent = "credential_denied"
	AuditRateLimited      AuditEvent = "credential_rate_limited"
	AuditRequestRejected  AuditEvent = "request_rejected"
	AuditStoreFault       AuditEvent = "store_fault"
	AuditInternalError    AuditEvent = "internal_error"
)

// auditLogger wraps slog.Logger for per-operation diagnostics. Tokens and
// passwords are never logged.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

func (al *auditLogger) log(level slog.Level, event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("realm", realmFromContext(r.Context()).text),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), level, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logOutcome records a completed operation for user with its outcome.
func (al *auditLogger) logOutcome(event AuditEvent, r *http.Request, user, outcome string) {
	al.log(slog.LevelInfo, event, r,
		slog.String("user", user),
		slog.String("outcome", outcome))
}

// logFailure records a rejected or failed request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, user string, err error) {
	level := slog.LevelWarn
	if event == AuditStoreFault || event == AuditInternalError {
		level = slog.LevelError
	}
	al.log(level, event, r,
		slog.String("user", user),
		slog.String("error", err.Error()))
}
