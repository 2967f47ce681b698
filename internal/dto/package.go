package dto

// CreatePackageRequest creates a reusable item template package.
type CreatePackageRequest struct {
	Label       string  `json:"label" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// UpdatePackageRequest updates mutable package fields.
type UpdatePackageRequest struct {
	Label       *string `json:"label,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// CreatePackageItemRequest adds a template item to a package. Exactly
// one detail payload must be present, matching ItemType.
type CreatePackageItemRequest struct {
	PackageID     string                `json:"package_id" validate:"required,uuid4"`
	ItemType      string                `json:"item_type" validate:"required,oneof=TLF Dataset"`
	ItemSubtype   string                `json:"item_subtype" validate:"required,min=1,max=50"`
	ItemCode      string                `json:"item_code" validate:"required,min=1,max=100"`
	TLFDetail     *TLFDetailPayload     `json:"tlf_detail,omitempty"`
	DatasetDetail *DatasetDetailPayload `json:"dataset_detail,omitempty"`
}

// UpdatePackageItemRequest replaces a template item's detail payload.
type UpdatePackageItemRequest struct {
	TLFDetail     *TLFDetailPayload     `json:"tlf_detail,omitempty"`
	DatasetDetail *DatasetDetailPayload `json:"dataset_detail,omitempty"`
}
