package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mlevkov/chatgate/internal/common"
	"github.com/mlevkov/chatgate/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sessionRows(s *models.Session) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "owner_id", "kind", "created_at", "updated_at", "is_active"}).
		AddRow(s.ID, s.Name, s.OwnerID, string(s.Kind), s.CreatedAt, s.UpdatedAt, s.IsActive)
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now)
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+sessions\s*\(id,\s*name,\s*owner_id,\s*kind,`).
		WithArgs("s-1", "S1", "u-1", "assistant", sqlmock.AnyArg(), sqlmock.AnyArg(), true).
		WillReturnRows(rows)

	s := &models.Session{ID: "s-1", Name: "S1", OwnerID: "u-1", Kind: models.KindAssistant,
		CreatedAt: now, UpdatedAt: now, IsActive: true}
	got, err := repo.Create(context.Background(), s)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "s-1" || !got.IsActive {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestUpdate_NameOnly(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	want := &models.Session{ID: "s-1", Name: "renamed", OwnerID: "u-1", Kind: models.KindAssistant,
		CreatedAt: now, UpdatedAt: now, IsActive: true}

	q := `(?s)^UPDATE\s+sessions\s+SET\s+name\s*=\s*\$1,\s*updated_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3\s+AND\s+owner_id\s*=\s*\$4\s+RETURNING`
	mock.ExpectQuery(q).
		WithArgs("renamed", sqlmock.AnyArg(), "s-1", "u-1").
		WillReturnRows(sessionRows(want))

	name := "renamed"
	got, err := repo.Update(context.Background(), "s-1", "u-1", models.SessionPatch{Name: &name})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.Name != "renamed" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestUpdate_EmptyPatch(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	_, err := repo.Update(context.Background(), "s-1", "u-1", models.SessionPatch{})
	if !errors.Is(err, common.ErrorNoChanges) {
		t.Fatalf("expected ErrorNoChanges, got %v", err)
	}
}

func TestUpdate_NotOwned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE\s+sessions\s+SET`).
		WillReturnError(sql.ErrNoRows)

	active := false
	_, err := repo.Update(context.Background(), "s-1", "intruder", models.SessionPatch{IsActive: &active})
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestArchive_ReportsRowCount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+sessions\s+SET\s+is_active\s*=\s*FALSE,\s*updated_at\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+owner_id\s*=\s*\$3`

	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "s-1", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Archive(context.Background(), "s-1", "u-1")
	if err != nil {
		t.Fatalf("Archive error: %v", err)
	}
	if !ok {
		t.Fatal("expected archive to match a row")
	}

	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "missing", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.Archive(context.Background(), "missing", "u-1")
	if err != nil {
		t.Fatalf("Archive error: %v", err)
	}
	if ok {
		t.Fatal("expected archive of missing session to report false")
	}
}

func TestList_ActiveOnlyPagination(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^SELECT\s+.*FROM\s+sessions\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+kind\s*=\s*\$2\s+AND\s+is_active\s*=\s*TRUE\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$3\s+OFFSET\s+\$4`

	rows := sqlmock.NewRows([]string{"id", "name", "owner_id", "kind", "created_at", "updated_at", "is_active"}).
		AddRow("s-2", "newer", "u-1", "assistant", now, now, true).
		AddRow("s-1", "older", "u-1", "assistant", now.Add(-time.Hour), now, true)
	mock.ExpectQuery(q).
		WithArgs("u-1", "assistant", 30, 30).
		WillReturnRows(rows)

	got, err := repo.List(context.Background(), "u-1", ListFilter{
		Kind: models.KindAssistant, ActiveOnly: true, Limit: 30, Offset: 30,
	})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s-2" {
		t.Fatalf("unexpected sessions: %+v", got)
	}
}

func TestList_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "owner_id", "kind", "created_at", "updated_at", "is_active"})
	mock.ExpectQuery(`SELECT\s+.*FROM\s+sessions\s+WHERE\s+owner_id`).
		WithArgs("u-2", "assistant", 30, 0).
		WillReturnRows(rows)

	got, err := repo.List(context.Background(), "u-2", ListFilter{Kind: models.KindAssistant, Limit: 30})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}

func TestCountOwned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `SELECT\s+COUNT\(\*\)\s+FROM\s+sessions\s+WHERE\s+id\s+IN\s+\(\$1,\s*\$2\)\s+AND\s+owner_id\s*=\s*\$3\s+AND\s+kind\s*=\s*\$4`

	rows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(q).
		WithArgs("a", "b", "u-1", "assistant").
		WillReturnRows(rows)

	count, err := repo.CountOwned(context.Background(), []string{"a", "b"}, "u-1", models.KindAssistant)
	if err != nil {
		t.Fatalf("CountOwned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 owned session, got %d", count)
	}
}

func TestDeleteByIDs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+id\s+IN\s+\(\$1,\s*\$2\)`).
		WithArgs("a", "b").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteByIDs(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("DeleteByIDs error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
}
