package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

func TestItemRepositoryNaturalKeySet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewItemRepository(db)
	rows := sqlmock.NewRows([]string{"item_type", "item_subtype", "item_code"}).
		AddRow("TLF", "Table", "14.1.1").
		AddRow("TLF", "Table", "14.2.1").
		AddRow("Dataset", "ADaM", "ADSL")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT item_type, item_subtype, item_code FROM reporting_effort_items WHERE reporting_effort_id = $1")).
		WithArgs("effort-1").
		WillReturnRows(rows)

	keys, err := repo.NaturalKeySet(context.Background(), db, "effort-1")
	require.NoError(t, err)
	require.Len(t, keys, 3)
	_, ok := keys[models.ItemKey{Type: models.ItemTypeTLF, Subtype: "Table", Code: "14.1.1"}]
	require.True(t, ok)
	_, ok = keys[models.ItemKey{Type: models.ItemTypeDataset, Subtype: "ADaM", Code: "ADSL"}]
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryKeyExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewItemRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM reporting_effort_items")).
		WithArgs("effort-1", models.ItemTypeTLF, "Table", "14.1.1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.KeyExists(context.Background(), db, "effort-1", models.ItemKey{
		Type: models.ItemTypeTLF, Subtype: "Table", Code: "14.1.1",
	})
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryInsertWithProvenance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewItemRepository(db)
	now := time.Now()
	sourceType := models.SourcePackage
	sourceID := "pkg-1"
	sourceItemID := "pi-1"
	item := &models.ReportingEffortItem{
		ID:                "item-1",
		ReportingEffortID: "effort-1",
		ItemType:          models.ItemTypeTLF,
		ItemSubtype:       "Table",
		ItemCode:          "14.1.1",
		SourceType:        &sourceType,
		SourceID:          &sourceID,
		SourceItemID:      &sourceItemID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reporting_effort_items")).
		WithArgs(item.ID, item.ReportingEffortID, item.ItemType, item.ItemSubtype, item.ItemCode,
			&sourceType, &sourceID, &sourceItemID, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Insert(context.Background(), db, item))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryFindByIDAttachesTLFDetail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewItemRepository(db)
	now := time.Now()
	itemRows := sqlmock.NewRows([]string{
		"id", "reporting_effort_id", "item_type", "item_subtype", "item_code",
		"source_type", "source_id", "source_item_id", "created_at", "updated_at",
	}).
		AddRow("item-1", "effort-1", "TLF", "Table", "14.1.1", nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reporting_effort_items WHERE id = $1")).
		WithArgs("item-1").
		WillReturnRows(itemRows)

	tlfRows := sqlmock.NewRows([]string{
		"item_id", "title_id", "population_set_id", "footnote_set_id", "acronym_set_id", "ich_category_id",
	}).
		AddRow("item-1", "te-1", nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM item_tlf_details")).
		WillReturnRows(tlfRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM item_dataset_details")).
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "label", "structure"}))

	found, err := repo.FindByID(context.Background(), "item-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.TLFDetail)
	require.Equal(t, "te-1", *found.TLFDetail.TitleID)
	require.Nil(t, found.DatasetDetail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryFindByIDAbsent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewItemRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reporting_effort_items WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	found, err := repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}
