package dto

// UpdateTrackerRequest patches tracker workflow fields. Nil fields are
// left untouched; ClearProductionUser/ClearQCUser explicitly null an
// assignee (a nil pointer alone cannot distinguish "unset" from
// "leave alone").
type UpdateTrackerRequest struct {
	ProductionUserID    *string `json:"production_user_id,omitempty" validate:"omitempty,uuid4"`
	ClearProductionUser bool    `json:"clear_production_user,omitempty"`
	QCUserID            *string `json:"qc_user_id,omitempty" validate:"omitempty,uuid4"`
	ClearQCUser         bool    `json:"clear_qc_user,omitempty"`
	ProductionStatus    *string `json:"production_status,omitempty" validate:"omitempty,oneof=NOT_STARTED IN_PROGRESS PRODUCED ON_HOLD"`
	QCStatus            *string `json:"qc_status,omitempty" validate:"omitempty,oneof=NOT_STARTED IN_REVIEW PASSED FAILED"`
	Priority            *string `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	DueDate             *string `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ClearDueDate        bool    `json:"clear_due_date,omitempty"`
}
