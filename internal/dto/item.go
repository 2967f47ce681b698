package dto

// TLFDetailPayload carries dictionary references for a TLF item.
type TLFDetailPayload struct {
	TitleID         *string `json:"title_id,omitempty" validate:"omitempty,uuid4"`
	PopulationSetID *string `json:"population_set_id,omitempty" validate:"omitempty,uuid4"`
	FootnoteSetID   *string `json:"footnote_set_id,omitempty" validate:"omitempty,uuid4"`
	AcronymSetID    *string `json:"acronym_set_id,omitempty" validate:"omitempty,uuid4"`
	IchCategoryID   *string `json:"ich_category_id,omitempty" validate:"omitempty,uuid4"`
}

// DatasetDetailPayload carries dataset attributes.
type DatasetDetailPayload struct {
	Label     string  `json:"label" validate:"required,min=1,max=200"`
	Structure *string `json:"structure,omitempty" validate:"omitempty,max=200"`
}

// CreateItemRequest creates a reporting effort item. Exactly one of
// TLFDetail / DatasetDetail must be populated, matching ItemType.
type CreateItemRequest struct {
	ReportingEffortID string                `json:"reporting_effort_id" validate:"required,uuid4"`
	ItemType          string                `json:"item_type" validate:"required,oneof=TLF Dataset"`
	ItemSubtype       string                `json:"item_subtype" validate:"required,min=1,max=50"`
	ItemCode          string                `json:"item_code" validate:"required,min=1,max=100"`
	TLFDetail         *TLFDetailPayload     `json:"tlf_detail,omitempty"`
	DatasetDetail     *DatasetDetailPayload `json:"dataset_detail,omitempty"`
}

// UpdateItemRequest updates item detail associations. The natural key
// is immutable after creation; delete and recreate to change it.
type UpdateItemRequest struct {
	TLFDetail     *TLFDetailPayload     `json:"tlf_detail,omitempty"`
	DatasetDetail *DatasetDetailPayload `json:"dataset_detail,omitempty"`
}
