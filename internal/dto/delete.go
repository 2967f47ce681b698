package dto

// Entity type names accepted by the delete endpoint. They double as
// audit table names.
const (
	EntityStudy           = "studies"
	EntityDatabaseRelease = "database_releases"
	EntityReportingEffort = "reporting_efforts"
	EntityItem            = "reporting_effort_items"
	EntityTracker         = "trackers"
	EntityComment         = "comments"
	EntityPackage         = "packages"
	EntityPackageItem     = "package_items"
	EntityTextElement     = "text_elements"
	EntityUser            = "users"
)

// DeleteResult reports the effect of a delete request. When the policy
// for the target's children is RESTRICT and dependents exist, Rejected
// is true and nothing was changed; ConflictSample holds up to five
// blocking labels/codes for display.
type DeleteResult struct {
	Rejected       bool           `json:"rejected"`
	ConflictCount  int            `json:"conflict_count,omitempty"`
	ConflictSample []string       `json:"conflict_sample,omitempty"`
	Cascaded       map[string]int `json:"cascaded,omitempty"`
}
