package sections

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreateSection(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO sections").
		WithArgs(int64(3), "Week 1", "active", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(41), now, now))

	got, err := repo.CreateSection(context.Background(), Section{CourseID: 3, Name: "Week 1", Status: StatusActive, Order: 2})
	if err != nil {
		t.Fatalf("CreateSection: %v", err)
	}
	if got.ID != 41 || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected section %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetSectionNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT id, course_id, name").
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetSection(context.Background(), 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListResourcesHandlesNullMedia(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "section_id", "sort_order", "title", "description", "status", "media_url", "created_at", "updated_at"}).
		AddRow(int64(10), int64(5), 1, "intro", "", "active", "https://cdn.test/10.mp4", now, now).
		AddRow(int64(11), int64(5), 2, "reading", "", "inactive", nil, now, now)
	mock.ExpectQuery("FROM resources").WithArgs(int64(5)).WillReturnRows(rows)

	list, err := repo.ListResources(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(list) != 2 || list[0].MediaURL != "https://cdn.test/10.mp4" || list[1].MediaURL != "" {
		t.Fatalf("unexpected resources %+v", list)
	}
	if list[1].Status != StatusInactive {
		t.Fatalf("unexpected status %q", list[1].Status)
	}
}

func TestPGRepoSyncResourcesRunsInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM sections WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery(`SELECT id FROM resources WHERE section_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(11)))
	mock.ExpectExec("DELETE FROM resources").
		WithArgs(int64(10), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE resources").
		WithArgs(int64(1), "second", "", "active", nil, int64(11), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO resources").
		WithArgs(int64(5), int64(2), "new", "", "active", "https://cdn.test/new.mp4").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectExec("UPDATE sections SET updated_at").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.SyncResources(context.Background(), 5, SyncInput{
		Creates: []ResourceInput{{TempID: "tmp-1", Order: 2, Title: "new", Status: StatusActive, MediaURL: "https://cdn.test/new.mp4"}},
		Updates: []ResourceInput{{ID: 11, Order: 1, Title: "second", Status: StatusActive}},
		Deletes: []int64{10},
	})
	if err != nil {
		t.Fatalf("SyncResources: %v", err)
	}
	if len(created) != 1 || created[0].ID != 12 || created[0].TempID != "tmp-1" {
		t.Fatalf("unexpected created %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSyncResourcesRollsBackForeignIDs(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM sections WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery(`SELECT id FROM resources WHERE section_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectRollback()

	_, err := repo.SyncResources(context.Background(), 5, SyncInput{
		Updates: []ResourceInput{{ID: 99, Order: 1, Status: StatusActive}},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSyncResourcesRejectsUnnamedResources(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM sections WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery(`SELECT id FROM resources WHERE section_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(11)))
	mock.ExpectRollback()

	_, err := repo.SyncResources(context.Background(), 5, SyncInput{
		Creates: []ResourceInput{{TempID: "tmp-1", Order: 1, Status: StatusActive}},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSyncResourcesMissingSection(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM sections WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(8)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	if _, err := repo.SyncResources(context.Background(), 8, SyncInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoMediaInUse(t *testing.T) {
	repo, mock := newMockRepo(t)
	query := `SELECT EXISTS \(SELECT 1 FROM resources WHERE media_url = \$1\)`
	mock.ExpectQuery(query).
		WithArgs("http://api.test/a.mp4").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(query).
		WithArgs("https://cdn.test/a.mp4").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	inUse, err := repo.MediaInUse(context.Background(), []string{"http://api.test/a.mp4", "https://cdn.test/a.mp4"})
	if err != nil {
		t.Fatalf("MediaInUse: %v", err)
	}
	if !inUse {
		t.Fatal("expected media to be in use")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
