package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"load-analytics/internal/analysis/domain/dataset"
	"load-analytics/internal/analysis/domain/series"
)

func TestDatasetRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := NewDatasetRepository(db, WithTables("it_datasets", "it_dataset_readings"))
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	_, _ = db.ExecContext(ctx, "DELETE FROM it_datasets")

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := series.FromPoints("A1", []series.Point{
		{Timestamp: day.Add(15 * time.Minute), Value: 6},
		{Timestamp: day, Value: 5},
	})
	ds := &dataset.Dataset{
		ID:         "it-ds-1",
		Filename:   "load.csv",
		Format:     "csv",
		UploadedAt: day,
		Entities:   []string{"A1"},
		Rows:       3,
		Discards:   series.Discards{Value: 1},
	}
	if err := repo.Save(ctx, ds, map[string]*series.Series{"A1": s}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Saving twice replaces the readings.
	if err := repo.Save(ctx, ds, map[string]*series.Series{"A1": s}); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := repo.Get(ctx, "it-ds-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Rows != 3 || got.Discards.Value != 1 || len(got.Entities) != 1 {
		t.Fatalf("unexpected dataset: %+v", got)
	}
	loaded, err := repo.Series(ctx, "it-ds-1", "A1")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if loaded.Len() != 2 || loaded.At(0).Value != 5 {
		t.Fatalf("unexpected series: %+v", loaded.Points())
	}

	if err := repo.Delete(ctx, "it-ds-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "it-ds-1"); !errors.Is(err, dataset.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDatasetRepositoryNilDB(t *testing.T) {
	repo := NewDatasetRepository(nil)
	if _, err := repo.Get(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
