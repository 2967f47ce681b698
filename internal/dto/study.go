package dto

// CreateStudyRequest creates a study.
type CreateStudyRequest struct {
	Label       string  `json:"label" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// UpdateStudyRequest updates mutable study fields.
type UpdateStudyRequest struct {
	Label       *string `json:"label,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// CreateReleaseRequest creates a database release under a study.
type CreateReleaseRequest struct {
	StudyID     string  `json:"study_id" validate:"required,uuid4"`
	Label       string  `json:"label" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// UpdateReleaseRequest updates mutable release fields.
type UpdateReleaseRequest struct {
	Label       *string `json:"label,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// CreateEffortRequest creates a reporting effort under a release. The
// release must belong to the given study.
type CreateEffortRequest struct {
	StudyID           string  `json:"study_id" validate:"required,uuid4"`
	DatabaseReleaseID string  `json:"database_release_id" validate:"required,uuid4"`
	Label             string  `json:"label" validate:"required,min=1,max=100"`
	Description       *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	DueDate           *string `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateEffortRequest updates mutable effort fields.
type UpdateEffortRequest struct {
	Label       *string `json:"label,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	DueDate     *string `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
