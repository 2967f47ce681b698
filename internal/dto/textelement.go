package dto

// CreateTextElementRequest adds a dictionary entry.
type CreateTextElementRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=title footnote_set acronym_set population_set ich_category"`
	Label   string `json:"label" validate:"required,min=1,max=200"`
	Content string `json:"content" validate:"required,min=1,max=10000"`
}

// UpdateTextElementRequest updates a dictionary entry. Kind is fixed
// at creation.
type UpdateTextElementRequest struct {
	Label   *string `json:"label,omitempty" validate:"omitempty,min=1,max=200"`
	Content *string `json:"content,omitempty" validate:"omitempty,min=1,max=10000"`
}
