package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// PackageRepository provides persistence for item package templates.
type PackageRepository struct {
	db *sqlx.DB
}

// NewPackageRepository constructs the repository.
func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// List returns all packages ordered by label.
func (r *PackageRepository) List(ctx context.Context) ([]models.Package, error) {
	const query = `SELECT id, label, description, created_at, updated_at FROM packages ORDER BY label ASC`

	var packages []models.Package
	if err := r.db.SelectContext(ctx, &packages, query); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return packages, nil
}

// FindByID fetches one package; returns (nil, nil) when absent.
func (r *PackageRepository) FindByID(ctx context.Context, id string) (*models.Package, error) {
	return r.find(ctx, r.db, id)
}

// Get fetches one package inside the caller's transaction.
func (r *PackageRepository) Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.Package, error) {
	return r.find(ctx, q, id)
}

func (r *PackageRepository) find(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Package, error) {
	const query = `SELECT id, label, description, created_at, updated_at FROM packages WHERE id = $1`

	var pkg models.Package
	if err := sqlx.GetContext(ctx, q, &pkg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get package: %w", err)
	}
	return &pkg, nil
}

// LabelExists reports whether a package with the label already exists.
func (r *PackageRepository) LabelExists(ctx context.Context, q sqlx.ExtContext, label, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM packages WHERE label = $1 AND id <> $2)`

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, label, excludeID); err != nil {
		return false, fmt.Errorf("check package label: %w", err)
	}
	return exists, nil
}

// Insert persists a new package.
func (r *PackageRepository) Insert(ctx context.Context, q sqlx.ExtContext, pkg *models.Package) error {
	const query = `INSERT INTO packages (id, label, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`

	if _, err := q.ExecContext(ctx, query, pkg.ID, pkg.Label, pkg.Description, pkg.CreatedAt, pkg.UpdatedAt); err != nil {
		return fmt.Errorf("insert package: %w", err)
	}
	return nil
}

// Update persists mutable package fields.
func (r *PackageRepository) Update(ctx context.Context, q sqlx.ExtContext, pkg *models.Package) error {
	const query = `UPDATE packages SET label = $1, description = $2, updated_at = $3 WHERE id = $4`

	if _, err := q.ExecContext(ctx, query, pkg.Label, pkg.Description, pkg.UpdatedAt, pkg.ID); err != nil {
		return fmt.Errorf("update package: %w", err)
	}
	return nil
}

// Delete removes a package row.
func (r *PackageRepository) Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error) {
	const query = `DELETE FROM packages WHERE id = $1`

	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete package: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

const packageItemColumns = `id, package_id, item_type, item_subtype, item_code, created_at, updated_at`

// ListItems returns all items of a package with details attached.
func (r *PackageRepository) ListItems(ctx context.Context, packageID string) ([]models.PackageItem, error) {
	return r.listItems(ctx, r.db, packageID)
}

// ListItemsTx is ListItems inside the caller's transaction; the copy
// engine reads source items through it.
func (r *PackageRepository) ListItemsTx(ctx context.Context, q sqlx.ExtContext, packageID string) ([]models.PackageItem, error) {
	return r.listItems(ctx, q, packageID)
}

func (r *PackageRepository) listItems(ctx context.Context, q sqlx.QueryerContext, packageID string) ([]models.PackageItem, error) {
	query := `SELECT ` + packageItemColumns + ` FROM package_items WHERE package_id = $1 ORDER BY item_type, item_subtype, item_code`

	var items []models.PackageItem
	if err := sqlx.SelectContext(ctx, q, &items, query, packageID); err != nil {
		return nil, fmt.Errorf("list package items: %w", err)
	}
	if err := r.attachItemDetails(ctx, q, items); err != nil {
		return nil, err
	}
	return items, nil
}

// FindItemByID fetches one package item with details.
func (r *PackageRepository) FindItemByID(ctx context.Context, id string) (*models.PackageItem, error) {
	return r.findItem(ctx, r.db, id)
}

// GetItem is FindItemByID on the caller's transaction.
func (r *PackageRepository) GetItem(ctx context.Context, q sqlx.ExtContext, id string) (*models.PackageItem, error) {
	return r.findItem(ctx, q, id)
}

func (r *PackageRepository) findItem(ctx context.Context, q sqlx.QueryerContext, id string) (*models.PackageItem, error) {
	query := `SELECT ` + packageItemColumns + ` FROM package_items WHERE id = $1`

	var item models.PackageItem
	if err := sqlx.GetContext(ctx, q, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get package item: %w", err)
	}
	items := []models.PackageItem{item}
	if err := r.attachItemDetails(ctx, q, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ItemKeyExists reports whether the package already holds an item with
// the natural key.
func (r *PackageRepository) ItemKeyExists(ctx context.Context, q sqlx.ExtContext, packageID string, key models.ItemKey) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM package_items
WHERE package_id = $1 AND item_type = $2 AND item_subtype = $3 AND item_code = $4)`

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, packageID, key.Type, key.Subtype, key.Code); err != nil {
		return false, fmt.Errorf("check package item key: %w", err)
	}
	return exists, nil
}

// CountItems counts the items blocking a package delete.
func (r *PackageRepository) CountItems(ctx context.Context, q sqlx.ExtContext, packageID string) (int, error) {
	const query = `SELECT COUNT(*) FROM package_items WHERE package_id = $1`

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, packageID); err != nil {
		return 0, fmt.Errorf("count package items: %w", err)
	}
	return count, nil
}

// SampleItemCodes returns up to limit item codes for conflict reporting.
func (r *PackageRepository) SampleItemCodes(ctx context.Context, q sqlx.ExtContext, packageID string, limit int) ([]string, error) {
	const query = `SELECT item_code FROM package_items WHERE package_id = $1 ORDER BY item_code ASC LIMIT $2`

	var codes []string
	if err := sqlx.SelectContext(ctx, q, &codes, query, packageID, limit); err != nil {
		return nil, fmt.Errorf("sample package item codes: %w", err)
	}
	return codes, nil
}

// InsertItem persists a new package item row.
func (r *PackageRepository) InsertItem(ctx context.Context, q sqlx.ExtContext, item *models.PackageItem) error {
	const query = `INSERT INTO package_items (id, package_id, item_type, item_subtype, item_code, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := q.ExecContext(ctx, query,
		item.ID, item.PackageID, item.ItemType, item.ItemSubtype, item.ItemCode, item.CreatedAt, item.UpdatedAt); err != nil {
		return fmt.Errorf("insert package item: %w", err)
	}
	return nil
}

// UpsertItemTLFDetail writes the TLF detail row for a package item.
func (r *PackageRepository) UpsertItemTLFDetail(ctx context.Context, q sqlx.ExtContext, d *models.TLFDetail) error {
	const query = `INSERT INTO package_item_tlf_details (item_id, title_id, population_set_id, footnote_set_id, acronym_set_id, ich_category_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (item_id) DO UPDATE SET
	title_id = EXCLUDED.title_id,
	population_set_id = EXCLUDED.population_set_id,
	footnote_set_id = EXCLUDED.footnote_set_id,
	acronym_set_id = EXCLUDED.acronym_set_id,
	ich_category_id = EXCLUDED.ich_category_id`

	if _, err := q.ExecContext(ctx, query, d.ItemID, d.TitleID, d.PopulationSetID, d.FootnoteSetID, d.AcronymSetID, d.IchCategoryID); err != nil {
		return fmt.Errorf("upsert package item tlf detail: %w", err)
	}
	return nil
}

// UpsertItemDatasetDetail writes the dataset detail row for a package item.
func (r *PackageRepository) UpsertItemDatasetDetail(ctx context.Context, q sqlx.ExtContext, d *models.DatasetDetail) error {
	const query = `INSERT INTO package_item_dataset_details (item_id, label, structure)
VALUES ($1, $2, $3)
ON CONFLICT (item_id) DO UPDATE SET label = EXCLUDED.label, structure = EXCLUDED.structure`

	if _, err := q.ExecContext(ctx, query, d.ItemID, d.Label, d.Structure); err != nil {
		return fmt.Errorf("upsert package item dataset detail: %w", err)
	}
	return nil
}

// DeleteItem removes one package item and its detail rows.
func (r *PackageRepository) DeleteItem(ctx context.Context, q sqlx.ExtContext, id string) (int64, error) {
	if _, err := q.ExecContext(ctx, `DELETE FROM package_item_tlf_details WHERE item_id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete package item tlf detail: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM package_item_dataset_details WHERE item_id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete package item dataset detail: %w", err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM package_items WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete package item: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (r *PackageRepository) attachItemDetails(ctx context.Context, q sqlx.QueryerContext, items []models.PackageItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	index := make(map[string]int, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = i
	}

	query, args, err := sqlx.In(`SELECT item_id, title_id, population_set_id, footnote_set_id, acronym_set_id, ich_category_id FROM package_item_tlf_details WHERE item_id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build package tlf detail query: %w", err)
	}
	var tlfDetails []models.TLFDetail
	if err := sqlx.SelectContext(ctx, q, &tlfDetails, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return fmt.Errorf("load package tlf details: %w", err)
	}
	for i := range tlfDetails {
		if idx, ok := index[tlfDetails[i].ItemID]; ok {
			items[idx].TLFDetail = &tlfDetails[i]
		}
	}

	query, args, err = sqlx.In(`SELECT item_id, label, structure FROM package_item_dataset_details WHERE item_id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build package dataset detail query: %w", err)
	}
	var datasetDetails []models.DatasetDetail
	if err := sqlx.SelectContext(ctx, q, &datasetDetails, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return fmt.Errorf("load package dataset details: %w", err)
	}
	for i := range datasetDetails {
		if idx, ok := index[datasetDetails[i].ItemID]; ok {
			items[idx].DatasetDetail = &datasetDetails[i]
		}
	}

	return nil
}
