package models

import "time"

// TextElementKind partitions the shared text dictionary.
type TextElementKind string

const (
	TextElementTitle         TextElementKind = "title"
	TextElementFootnoteSet   TextElementKind = "footnote_set"
	TextElementAcronymSet    TextElementKind = "acronym_set"
	TextElementPopulationSet TextElementKind = "population_set"
	TextElementIchCategory   TextElementKind = "ich_category"
)

// TextElement is a shared dictionary entry (title, footnote set,
// acronym set, population set or ICH category) referenced by item
// detail rows through nullable foreign keys.
type TextElement struct {
	ID        string          `db:"id" json:"id"`
	Kind      TextElementKind `db:"kind" json:"kind"`
	Label     string          `db:"label" json:"label"`
	Content   string          `db:"content" json:"content"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
