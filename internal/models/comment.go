package models

import "time"

// Comment is a threaded note on a tracker. Replies form an unbounded
// tree through ParentCommentID. Comments are soft-deleted so thread
// structure survives; hard deletion only happens when the owning
// tracker is cascaded away.
type Comment struct {
	ID               string     `db:"id" json:"id"`
	TrackerID        string     `db:"tracker_id" json:"tracker_id"`
	UserID           string     `db:"user_id" json:"user_id"`
	ParentCommentID  *string    `db:"parent_comment_id" json:"parent_comment_id,omitempty"`
	Body             string     `db:"body" json:"body"`
	IsResolved       bool       `db:"is_resolved" json:"is_resolved"`
	ResolvedByUserID *string    `db:"resolved_by_user_id" json:"resolved_by_user_id,omitempty"`
	ResolvedAt       *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	IsDeleted        bool       `db:"is_deleted" json:"is_deleted"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// CountsAsUnresolved reports whether the comment contributes to its
// tracker's unresolved counter.
func (c Comment) CountsAsUnresolved() bool {
	return !c.IsResolved && !c.IsDeleted
}
