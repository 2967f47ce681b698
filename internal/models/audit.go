package models

import (
	"encoding/json"
	"time"
)

// Audit actions recorded per logical mutation. A bulk copy writes a
// single COPY entry, not one per item.
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"
	AuditActionCopy   = "COPY"
)

// AuditEntry is one immutable row of the audit trail. The table is
// append-only: nothing in this codebase updates or deletes from it.
type AuditEntry struct {
	ID        string          `db:"id" json:"id"`
	TableName string          `db:"table_name" json:"table_name"`
	RecordID  string          `db:"record_id" json:"record_id"`
	Action    string          `db:"action" json:"action"`
	ActorID   *string         `db:"actor_id" json:"actor_id,omitempty"`
	Changes   json.RawMessage `db:"changes" json:"changes"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// AuditFilter constrains audit listings.
type AuditFilter struct {
	TableName string
	RecordID  string
	Action    string
	ActorID   string
	Page      int
	PageSize  int
}
