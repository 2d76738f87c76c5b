package chart

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestDatastore_GetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ws, id := uuid.New(), uuid.New()
	mock.ExpectQuery(`FROM charts WHERE id = \$1 AND workspace_id = \$2`).
		WithArgs(id, ws).
		WillReturnRows(sqlmock.NewRows(chartCols))

	_, err = NewDatastore(db).Get(context.Background(), ws, id)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDatastore_DeleteReportsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ws, id := uuid.New(), uuid.New()
	mock.ExpectExec(`DELETE FROM charts WHERE id = \$1 AND workspace_id = \$2`).
		WithArgs(id, ws).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := NewDatastore(db).Delete(context.Background(), ws, id)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
