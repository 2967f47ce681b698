package models

import "time"

// ProductionStatus tracks the authoring side of an item.
type ProductionStatus string

const (
	ProductionNotStarted ProductionStatus = "NOT_STARTED"
	ProductionInProgress ProductionStatus = "IN_PROGRESS"
	ProductionProduced   ProductionStatus = "PRODUCED"
	ProductionOnHold     ProductionStatus = "ON_HOLD"
)

// QCStatus tracks the independent quality-control side.
type QCStatus string

const (
	QCNotStarted QCStatus = "NOT_STARTED"
	QCInReview   QCStatus = "IN_REVIEW"
	QCPassed     QCStatus = "PASSED"
	QCFailed     QCStatus = "FAILED"
)

// TrackerPriority orders work within an effort.
type TrackerPriority string

const (
	PriorityLow    TrackerPriority = "LOW"
	PriorityMedium TrackerPriority = "MEDIUM"
	PriorityHigh   TrackerPriority = "HIGH"
)

// Tracker holds per-item workflow state. Exactly one tracker exists per
// reporting effort item; it is created with the item and dies with it.
// UnresolvedCommentCount is derived state maintained incrementally by
// the comment mutation paths and is never recomputed on read.
type Tracker struct {
	ID                     string           `db:"id" json:"id"`
	ReportingEffortItemID  string           `db:"reporting_effort_item_id" json:"reporting_effort_item_id"`
	ProductionUserID       *string          `db:"production_user_id" json:"production_user_id,omitempty"`
	QCUserID               *string          `db:"qc_user_id" json:"qc_user_id,omitempty"`
	ProductionStatus       ProductionStatus `db:"production_status" json:"production_status"`
	QCStatus               QCStatus         `db:"qc_status" json:"qc_status"`
	Priority               TrackerPriority  `db:"priority" json:"priority"`
	DueDate                *time.Time       `db:"due_date" json:"due_date,omitempty"`
	UnresolvedCommentCount int              `db:"unresolved_comment_count" json:"unresolved_comment_count"`
	CreatedAt              time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time        `db:"updated_at" json:"updated_at"`
}

// TrackerRow is the joined projection used for effort-scope listings,
// snapshots and exports.
type TrackerRow struct {
	TrackerID              string           `db:"tracker_id" json:"tracker_id"`
	ItemID                 string           `db:"item_id" json:"item_id"`
	ItemType               ItemType         `db:"item_type" json:"item_type"`
	ItemSubtype            string           `db:"item_subtype" json:"item_subtype"`
	ItemCode               string           `db:"item_code" json:"item_code"`
	ProductionStatus       ProductionStatus `db:"production_status" json:"production_status"`
	QCStatus               QCStatus         `db:"qc_status" json:"qc_status"`
	Priority               TrackerPriority  `db:"priority" json:"priority"`
	DueDate                *time.Time       `db:"due_date" json:"due_date,omitempty"`
	UnresolvedCommentCount int              `db:"unresolved_comment_count" json:"unresolved_comment_count"`
	ProductionUserName     *string          `db:"production_user_name" json:"production_user_name,omitempty"`
	QCUserName             *string          `db:"qc_user_name" json:"qc_user_name,omitempty"`
}
