package models

import "time"

// Package is a reusable template of reporting items. Reporting efforts
// copy items out of packages; packages themselves carry no trackers.
type Package struct {
	ID          string    `db:"id" json:"id"`
	Label       string    `db:"label" json:"label"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PackageItem mirrors ReportingEffortItem structurally, minus tracker
// and provenance. The natural key is unique per package.
type PackageItem struct {
	ID          string    `db:"id" json:"id"`
	PackageID   string    `db:"package_id" json:"package_id"`
	ItemType    ItemType  `db:"item_type" json:"item_type"`
	ItemSubtype string    `db:"item_subtype" json:"item_subtype"`
	ItemCode    string    `db:"item_code" json:"item_code"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	TLFDetail     *TLFDetail     `db:"-" json:"tlf_detail,omitempty"`
	DatasetDetail *DatasetDetail `db:"-" json:"dataset_detail,omitempty"`
}

// Key returns the item's natural key.
func (i PackageItem) Key() ItemKey {
	return ItemKey{Type: i.ItemType, Subtype: i.ItemSubtype, Code: i.ItemCode}
}
