// Package audit records who did what to the ledger.
package audit

import (
	"context"
	"log"
	"net/http"
	"strings"

	"moledger/internal/models"
)

// Actions.
const (
	ActionCreate  = "created"
	ActionReprint = "reprinted"
	ActionImport  = "imported"
)

// Audit modules.
const (
	ModuleMO      = "mo"
	ModuleCatalog = "catalog"
)

// Store persists audit entries.
type Store interface {
	RecordAudit(ctx context.Context, e models.AuditEntry) error
}

// Log writes audit entries. A nil *Log or nil store discards them.
type Log struct {
	store Store
}

func New(store Store) *Log {
	return &Log{store: store}
}

// Record writes one ledger entry. Failures are logged, never returned.
func (l *Log) Record(ctx context.Context, username, action, recordID, summary string) {
	l.write(ctx, ModuleMO, username, action, recordID, summary)
}

// RecordCatalog writes one catalog entry.
func (l *Log) RecordCatalog(ctx context.Context, username, action, recordID, summary string) {
	l.write(ctx, ModuleCatalog, username, action, recordID, summary)
}

func (l *Log) write(ctx context.Context, module, username, action, recordID, summary string) {
	if l == nil || l.store == nil {
		return
	}
	if username == "" {
		username = "system"
	}
	err := l.store.RecordAudit(ctx, models.AuditEntry{
		Username: username,
		Action:   action,
		Module:   module,
		RecordID: recordID,
		Summary:  summary,
	})
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
}

type userKey struct{}

// WithUsername attaches the acting user to ctx.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userKey{}, username)
}

// Username returns the acting user from ctx, or "system".
func Username(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(string); ok && u != "" {
		return u
	}
	return "system"
}

// RequestUsername reads the X-User header set by an upstream proxy.
func RequestUsername(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get("X-User")); u != "" {
		return u
	}
	return "system"
}

// ClientIP extracts the real client IP from the request (handles proxies).
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
