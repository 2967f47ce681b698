package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

func TestAuditRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	actor := "user-1"
	entry := &models.AuditEntry{
		ID:        "audit-1",
		TableName: "studies",
		RecordID:  "study-1",
		Action:    models.AuditActionCreate,
		ActorID:   &actor,
		Changes:   json.RawMessage(`{"created":{"id":"study-1"}}`),
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WithArgs(entry.ID, entry.TableName, entry.RecordID, entry.Action, &actor, []byte(entry.Changes), entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Insert(context.Background(), db, entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListUnfiltered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_log WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "table_name", "record_id", "action", "actor_id", "changes", "created_at"}).
		AddRow("audit-2", "trackers", "tracker-1", "UPDATE", nil, []byte(`{}`), now).
		AddRow("audit-1", "studies", "study-1", "CREATE", nil, []byte(`{}`), now.Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $1 OFFSET $2")).
		WithArgs(50, 0).
		WillReturnRows(rows)

	entries, total, err := repo.List(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, entries, 2)
	require.Equal(t, "audit-2", entries[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListFiltered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_log WHERE 1=1 AND table_name = $1 AND action = $2")).
		WithArgs("comments", "DELETE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := sqlmock.NewRows([]string{"id", "table_name", "record_id", "action", "actor_id", "changes", "created_at"}).
		AddRow("audit-9", "comments", "comment-1", "DELETE", nil, []byte(`{}`), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("AND table_name = $1 AND action = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("comments", "DELETE", 25, 25).
		WillReturnRows(rows)

	entries, total, err := repo.List(context.Background(), models.AuditFilter{
		TableName: "comments",
		Action:    "DELETE",
		Page:      2,
		PageSize:  25,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, entries, 1)
	require.Equal(t, "comment-1", entries[0].RecordID)
	require.NoError(t, mock.ExpectationsWereMet())
}
