package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/SodiumBank/Datum/pkg/apperr"
)

func TestSQLStore_PutNextVersion_FirstVersionInsertsIndexRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	s := NewSQLStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO artifact_index").
		WithArgs("plan", "plan-1", 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO artifacts").
		WithArgs("plan", "plan-1", 1, []byte("v1-bytes"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version, err := s.PutNextVersion(ctx, "plan", "plan-1", 0, []byte("v1-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStore_PutNextVersion_ConflictWhenIndexMoved(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	s := NewSQLStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE artifact_index").
		WithArgs(2, "plan", "plan-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = s.PutNextVersion(ctx, "plan", "plan-1", 1, []byte("v2-bytes"))
	if err == nil {
		t.Fatal("expected VERSION_CONFLICT error")
	}
	if !apperr.Is(err, apperr.CodeVersionConflict) {
		t.Fatalf("expected CodeVersionConflict, got %v", err)
	}
}

func TestSQLStore_Get_ReturnsErrNotFoundForMissingVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	s := NewSQLStore(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT data FROM artifacts").
		WithArgs("plan", "plan-1", 9).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	if _, err := s.Get(ctx, "plan", "plan-1", 9); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_Append_AssignsMonotonicSequence(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	s := NewSQLStore(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("plan", "plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(int64(4), "plan", "plan-1", "qa-lead", "QA", "submitted", "approved", "looks good", "ok", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Append(ctx, "plan", "plan-1", "qa-lead", "QA", "submitted", "approved", "looks good", "ok", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
