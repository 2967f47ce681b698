package dto

// Export formats supported for the tracker matrix.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// Export lifecycle states.
const (
	ExportStatusPending = "pending"
	ExportStatusReady   = "ready"
	ExportStatusFailed  = "failed"
)

// CreateExportRequest asks for a tracker-matrix export of one effort.
type CreateExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportStatus describes a queued or finished export.
type ExportStatus struct {
	ID                string `json:"id"`
	ReportingEffortID string `json:"reporting_effort_id"`
	Format            string `json:"format"`
	Status            string `json:"status"`
	Error             string `json:"error,omitempty"`
}
