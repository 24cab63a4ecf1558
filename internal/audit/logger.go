package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"backoffice/backend/internal/audit/domain"
	auditrepo "backoffice/backend/internal/audit/repository"
	"backoffice/backend/internal/telemetry"
	telemetrydomain "backoffice/backend/internal/telemetry/domain"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource string, metadata map[string]string)
}

// Logger persists events to the audit repository and mirrors them to the telemetry emitter.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     telemetry.EventEmitter
	now         func() time.Time
}

// NewLogger returns an AuditLogger. ipExtractor and emitter may be nil; then IP is recorded
// as "unknown" and nothing is emitted.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, emitter telemetry.EventEmitter) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, emitter: emitter, now: time.Now}
}

// LogEvent writes one audit log entry. metadata must never carry tokens, codes or secrets.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource string, metadata map[string]string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	var meta []byte
	if len(metadata) > 0 {
		var err error
		if meta, err = json.Marshal(metadata); err != nil {
			log.Printf("audit: encode metadata for %s/%s: %v", action, resource, err)
			meta = nil
		}
	}
	now := l.now().UTC()
	if l.repo != nil {
		entry := &domain.AuditLog{
			ID:        uuid.New().String(),
			UserID:    userID,
			Action:    action,
			Resource:  resource,
			IP:        ip,
			Metadata:  string(meta),
			CreatedAt: now,
		}
		if err := l.repo.Create(ctx, entry); err != nil {
			log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
		}
	}
	telemetry.EmitAsync(l.emitter, ctx, &telemetrydomain.Event{
		UserID:    userID,
		EventType: action,
		Source:    resource,
		Metadata:  meta,
		CreatedAt: now,
	})
}
