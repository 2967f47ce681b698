package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// ItemRepository provides persistence for reporting effort items and
// their tagged detail rows (TLF or Dataset, exactly one per item).
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository constructs the repository.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, reporting_effort_id, item_type, item_subtype, item_code, source_type, source_id, source_item_id, created_at, updated_at`

// ListByEffort returns all items of an effort with details attached.
func (r *ItemRepository) ListByEffort(ctx context.Context, effortID string) ([]models.ReportingEffortItem, error) {
	return r.listByEffort(ctx, r.db, effortID)
}

// ListByEffortTx is ListByEffort inside the caller's transaction; the
// copy engine reads source items through it.
func (r *ItemRepository) ListByEffortTx(ctx context.Context, q sqlx.ExtContext, effortID string) ([]models.ReportingEffortItem, error) {
	return r.listByEffort(ctx, q, effortID)
}

func (r *ItemRepository) listByEffort(ctx context.Context, q sqlx.QueryerContext, effortID string) ([]models.ReportingEffortItem, error) {
	query := `SELECT ` + itemColumns + ` FROM reporting_effort_items WHERE reporting_effort_id = $1 ORDER BY item_type, item_subtype, item_code`

	var items []models.ReportingEffortItem
	if err := sqlx.SelectContext(ctx, q, &items, query, effortID); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if err := r.attachDetails(ctx, q, items); err != nil {
		return nil, err
	}
	return items, nil
}

// FindByID fetches one item with details; returns (nil, nil) when absent.
func (r *ItemRepository) FindByID(ctx context.Context, id string) (*models.ReportingEffortItem, error) {
	return r.find(ctx, r.db, id)
}

// Get fetches one item inside the caller's transaction.
func (r *ItemRepository) Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.ReportingEffortItem, error) {
	return r.find(ctx, q, id)
}

func (r *ItemRepository) find(ctx context.Context, q sqlx.QueryerContext, id string) (*models.ReportingEffortItem, error) {
	query := `SELECT ` + itemColumns + ` FROM reporting_effort_items WHERE id = $1`

	var item models.ReportingEffortItem
	if err := sqlx.GetContext(ctx, q, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	items := []models.ReportingEffortItem{item}
	if err := r.attachDetails(ctx, q, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// NaturalKeySet loads the full set of natural keys present in the
// target effort in one pass, for duplicate-safe copying.
func (r *ItemRepository) NaturalKeySet(ctx context.Context, q sqlx.ExtContext, effortID string) (map[models.ItemKey]struct{}, error) {
	const query = `SELECT item_type, item_subtype, item_code FROM reporting_effort_items WHERE reporting_effort_id = $1`

	var rows []struct {
		ItemType    models.ItemType `db:"item_type"`
		ItemSubtype string          `db:"item_subtype"`
		ItemCode    string          `db:"item_code"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, query, effortID); err != nil {
		return nil, fmt.Errorf("load item keys: %w", err)
	}

	keys := make(map[models.ItemKey]struct{}, len(rows))
	for _, row := range rows {
		keys[models.ItemKey{Type: row.ItemType, Subtype: row.ItemSubtype, Code: row.ItemCode}] = struct{}{}
	}
	return keys, nil
}

// KeyExists reports whether the effort already holds an item with the
// given natural key.
func (r *ItemRepository) KeyExists(ctx context.Context, q sqlx.ExtContext, effortID string, key models.ItemKey) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reporting_effort_items
WHERE reporting_effort_id = $1 AND item_type = $2 AND item_subtype = $3 AND item_code = $4)`

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, effortID, key.Type, key.Subtype, key.Code); err != nil {
		return false, fmt.Errorf("check item key: %w", err)
	}
	return exists, nil
}

// Insert persists a new item row (details are inserted separately).
func (r *ItemRepository) Insert(ctx context.Context, q sqlx.ExtContext, item *models.ReportingEffortItem) error {
	const query = `INSERT INTO reporting_effort_items (id, reporting_effort_id, item_type, item_subtype, item_code, source_type, source_id, source_item_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if _, err := q.ExecContext(ctx, query,
		item.ID, item.ReportingEffortID, item.ItemType, item.ItemSubtype, item.ItemCode,
		item.SourceType, item.SourceID, item.SourceItemID, item.CreatedAt, item.UpdatedAt); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// UpsertTLFDetail writes the TLF detail row for an item.
func (r *ItemRepository) UpsertTLFDetail(ctx context.Context, q sqlx.ExtContext, d *models.TLFDetail) error {
	const query = `INSERT INTO item_tlf_details (item_id, title_id, population_set_id, footnote_set_id, acronym_set_id, ich_category_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (item_id) DO UPDATE SET
	title_id = EXCLUDED.title_id,
	population_set_id = EXCLUDED.population_set_id,
	footnote_set_id = EXCLUDED.footnote_set_id,
	acronym_set_id = EXCLUDED.acronym_set_id,
	ich_category_id = EXCLUDED.ich_category_id`

	if _, err := q.ExecContext(ctx, query, d.ItemID, d.TitleID, d.PopulationSetID, d.FootnoteSetID, d.AcronymSetID, d.IchCategoryID); err != nil {
		return fmt.Errorf("upsert tlf detail: %w", err)
	}
	return nil
}

// UpsertDatasetDetail writes the dataset detail row for an item.
func (r *ItemRepository) UpsertDatasetDetail(ctx context.Context, q sqlx.ExtContext, d *models.DatasetDetail) error {
	const query = `INSERT INTO item_dataset_details (item_id, label, structure)
VALUES ($1, $2, $3)
ON CONFLICT (item_id) DO UPDATE SET label = EXCLUDED.label, structure = EXCLUDED.structure`

	if _, err := q.ExecContext(ctx, query, d.ItemID, d.Label, d.Structure); err != nil {
		return fmt.Errorf("upsert dataset detail: %w", err)
	}
	return nil
}

// DeleteByID removes one item row; its detail rows must be removed
// first (or rely on schema-level cascade).
func (r *ItemRepository) DeleteByID(ctx context.Context, q sqlx.ExtContext, id string) (int64, error) {
	const query = `DELETE FROM reporting_effort_items WHERE id = $1`

	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete item: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// DeleteDetailsByItem removes both possible detail rows of one item.
func (r *ItemRepository) DeleteDetailsByItem(ctx context.Context, q sqlx.ExtContext, itemID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM item_tlf_details WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete tlf detail: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM item_dataset_details WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete dataset detail: %w", err)
	}
	return nil
}

// DeleteByEffort removes all items of an effort, detail rows included,
// and returns the number of item rows removed.
func (r *ItemRepository) DeleteByEffort(ctx context.Context, q sqlx.ExtContext, effortID string) (int64, error) {
	const deleteTLF = `DELETE FROM item_tlf_details WHERE item_id IN (SELECT id FROM reporting_effort_items WHERE reporting_effort_id = $1)`
	const deleteDataset = `DELETE FROM item_dataset_details WHERE item_id IN (SELECT id FROM reporting_effort_items WHERE reporting_effort_id = $1)`
	const deleteItems = `DELETE FROM reporting_effort_items WHERE reporting_effort_id = $1`

	if _, err := q.ExecContext(ctx, deleteTLF, effortID); err != nil {
		return 0, fmt.Errorf("delete tlf details: %w", err)
	}
	if _, err := q.ExecContext(ctx, deleteDataset, effortID); err != nil {
		return 0, fmt.Errorf("delete dataset details: %w", err)
	}
	res, err := q.ExecContext(ctx, deleteItems, effortID)
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (r *ItemRepository) attachDetails(ctx context.Context, q sqlx.QueryerContext, items []models.ReportingEffortItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	index := make(map[string]int, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = i
	}

	query, args, err := sqlx.In(`SELECT item_id, title_id, population_set_id, footnote_set_id, acronym_set_id, ich_category_id FROM item_tlf_details WHERE item_id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build tlf detail query: %w", err)
	}
	var tlfDetails []models.TLFDetail
	if err := sqlx.SelectContext(ctx, q, &tlfDetails, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return fmt.Errorf("load tlf details: %w", err)
	}
	for i := range tlfDetails {
		if idx, ok := index[tlfDetails[i].ItemID]; ok {
			items[idx].TLFDetail = &tlfDetails[i]
		}
	}

	query, args, err = sqlx.In(`SELECT item_id, label, structure FROM item_dataset_details WHERE item_id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build dataset detail query: %w", err)
	}
	var datasetDetails []models.DatasetDetail
	if err := sqlx.SelectContext(ctx, q, &datasetDetails, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return fmt.Errorf("load dataset details: %w", err)
	}
	for i := range datasetDetails {
		if idx, ok := index[datasetDetails[i].ItemID]; ok {
			items[idx].DatasetDetail = &datasetDetails[i]
		}
	}

	return nil
}
