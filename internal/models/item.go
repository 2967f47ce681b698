package models

import (
	"fmt"
	"time"
)

// ItemType discriminates the two reporting item families.
type ItemType string

const (
	ItemTypeTLF     ItemType = "TLF"
	ItemTypeDataset ItemType = "Dataset"
)

// SourceType records where a copied item came from.
type SourceType string

const (
	SourcePackage         SourceType = "package"
	SourceReportingEffort SourceType = "reporting_effort"
	SourceCustom          SourceType = "custom"
	SourceBulkUpload      SourceType = "bulk_upload"
)

// ReportingEffortItem is a single deliverable (table, listing, figure
// or dataset) inside a reporting effort. The natural key
// (item_type, item_subtype, item_code) is unique per effort.
type ReportingEffortItem struct {
	ID                string     `db:"id" json:"id"`
	ReportingEffortID string     `db:"reporting_effort_id" json:"reporting_effort_id"`
	ItemType          ItemType   `db:"item_type" json:"item_type"`
	ItemSubtype       string     `db:"item_subtype" json:"item_subtype"`
	ItemCode          string     `db:"item_code" json:"item_code"`
	SourceType        *SourceType `db:"source_type" json:"source_type,omitempty"`
	SourceID          *string    `db:"source_id" json:"source_id,omitempty"`
	SourceItemID      *string    `db:"source_item_id" json:"source_item_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	TLFDetail     *TLFDetail     `db:"-" json:"tlf_detail,omitempty"`
	DatasetDetail *DatasetDetail `db:"-" json:"dataset_detail,omitempty"`
}

// TLFDetail carries the display associations of a TLF item. All
// references point into the shared text-element dictionary.
type TLFDetail struct {
	ItemID          string  `db:"item_id" json:"-"`
	TitleID         *string `db:"title_id" json:"title_id,omitempty"`
	PopulationSetID *string `db:"population_set_id" json:"population_set_id,omitempty"`
	FootnoteSetID   *string `db:"footnote_set_id" json:"footnote_set_id,omitempty"`
	AcronymSetID    *string `db:"acronym_set_id" json:"acronym_set_id,omitempty"`
	IchCategoryID   *string `db:"ich_category_id" json:"ich_category_id,omitempty"`
}

// DatasetDetail carries the dataset-specific attributes of an item.
type DatasetDetail struct {
	ItemID    string  `db:"item_id" json:"-"`
	Label     string  `db:"label" json:"label"`
	Structure *string `db:"structure" json:"structure,omitempty"`
}

// ItemKey is the natural key used for duplicate detection during copy.
type ItemKey struct {
	Type    ItemType
	Subtype string
	Code    string
}

// Key returns the item's natural key.
func (i ReportingEffortItem) Key() ItemKey {
	return ItemKey{Type: i.ItemType, Subtype: i.ItemSubtype, Code: i.ItemCode}
}

func (k ItemKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Type, k.Subtype, k.Code)
}
