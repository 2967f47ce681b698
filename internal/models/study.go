package models

import "time"

// Study is the root of the reporting hierarchy.
type Study struct {
	ID          string    `db:"id" json:"id"`
	Label       string    `db:"label" json:"label"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DatabaseRelease is a snapshot of study data that reporting efforts
// run against. Labels are unique within a study.
type DatabaseRelease struct {
	ID          string    `db:"id" json:"id"`
	StudyID     string    `db:"study_id" json:"study_id"`
	Label       string    `db:"label" json:"label"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ReportingEffort groups the reporting items produced against one
// database release. Labels are unique within a release.
type ReportingEffort struct {
	ID                string     `db:"id" json:"id"`
	StudyID           string     `db:"study_id" json:"study_id"`
	DatabaseReleaseID string     `db:"database_release_id" json:"database_release_id"`
	Label             string     `db:"label" json:"label"`
	Description       *string    `db:"description" json:"description,omitempty"`
	DueDate           *time.Time `db:"due_date" json:"due_date,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
