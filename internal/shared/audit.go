package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
)

// CollectionAuditLogs is the append-only audit trail collection.
const CollectionAuditLogs = "auditLogs"

// AuditLog represents one record in the audit trail.
type AuditLog struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actorId"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entityId"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// AuditLogger appends records to the audit trail collection.
type AuditLogger struct {
	store docstore.Store
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(store docstore.Store) *AuditLogger {
	return &AuditLogger{store: store}
}

// Record persists the log entry. Entries are never mutated after creation.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.OccurredAt.IsZero() {
		log.OccurredAt = time.Now().UTC()
	}
	fields, err := docstore.Encode(log)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, CollectionAuditLogs, log.ID, fields)
}
