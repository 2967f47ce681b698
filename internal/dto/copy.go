package dto

// Copy source kinds accepted by the copy engine.
const (
	CopySourcePackage         = "package"
	CopySourceReportingEffort = "reporting_effort"
)

// CopyItemsRequest copies items from a package or another reporting
// effort into a target effort. An empty ItemIDs list means "all items
// of the source".
type CopyItemsRequest struct {
	SourceKind              string   `json:"source_kind" validate:"required,oneof=package reporting_effort"`
	SourceID                string   `json:"source_id" validate:"required,uuid4"`
	TargetReportingEffortID string   `json:"target_reporting_effort_id" validate:"required,uuid4"`
	ItemIDs                 []string `json:"item_ids,omitempty" validate:"omitempty,dive,uuid4"`
}

// SkippedItem explains why one candidate was not copied.
type SkippedItem struct {
	ItemCode    string `json:"item_code"`
	ItemType    string `json:"item_type"`
	ItemSubtype string `json:"item_subtype"`
	Reason      string `json:"reason"`
}

// CopyReport is the structured outcome of one copy operation. It is
// returned to the caller and embedded verbatim in the single audit
// entry the operation writes.
type CopyReport struct {
	SourceKind   string        `json:"source_kind"`
	SourceID     string        `json:"source_id"`
	TargetID     string        `json:"target_id"`
	Attempted    int           `json:"attempted"`
	Created      int           `json:"created"`
	Skipped      int           `json:"skipped"`
	CreatedIDs   []string      `json:"created_ids"`
	SkippedItems []SkippedItem `json:"skipped_items"`
}
