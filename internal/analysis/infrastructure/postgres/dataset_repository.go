package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"load-analytics/internal/analysis/domain/dataset"
	"load-analytics/internal/analysis/domain/series"
)

const (
	defaultDatasetTable = "datasets"
	defaultReadingTable = "dataset_readings"
)

// DatasetRepository persists datasets and their readings in Postgres.
type DatasetRepository struct {
	db       *sql.DB
	datasets string
	readings string
	location *time.Location
	types    *pgtype.Map
}

// RepositoryOption configures the repository.
type RepositoryOption func(*DatasetRepository)

// WithTables overrides the default table names.
func WithTables(datasets, readings string) RepositoryOption {
	return func(repo *DatasetRepository) {
		if datasets != "" {
			repo.datasets = datasets
		}
		if readings != "" {
			repo.readings = readings
		}
	}
}

// WithLocation sets the location loaded timestamps are expressed in.
func WithLocation(loc *time.Location) RepositoryOption {
	return func(repo *DatasetRepository) {
		if loc != nil {
			repo.location = loc
		}
	}
}

// NewDatasetRepository constructs a repository with defaults.
func NewDatasetRepository(db *sql.DB, opts ...RepositoryOption) *DatasetRepository {
	repo := &DatasetRepository{
		db:       db,
		datasets: defaultDatasetTable,
		readings: defaultReadingTable,
		location: time.UTC,
		types:    pgtype.NewMap(),
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EnsureSchema creates the tables when they do not exist.
func (r *DatasetRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("dataset repo: nil db")
	}
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	format TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	entities TEXT[] NOT NULL DEFAULT '{}',
	rows INTEGER NOT NULL DEFAULT 0,
	discarded_entity INTEGER NOT NULL DEFAULT 0,
	discarded_timestamp INTEGER NOT NULL DEFAULT 0,
	discarded_value INTEGER NOT NULL DEFAULT 0
)`, r.datasets),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	dataset_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
	entity_id TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (dataset_id, entity_id, ts)
)`, r.readings, r.datasets),
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save replaces the dataset and all of its readings in one transaction.
func (r *DatasetRepository) Save(ctx context.Context, ds *dataset.Dataset, entities map[string]*series.Series) error {
	if r == nil || r.db == nil {
		return errors.New("dataset repo: nil db")
	}
	if ds == nil {
		return dataset.ErrNilDataset
	}
	if ds.ID == "" {
		return dataset.ErrEmptyID
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE dataset_id = $1`, r.readings), ds.ID); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	filename,
	format,
	uploaded_at,
	entities,
	rows,
	discarded_entity,
	discarded_timestamp,
	discarded_value
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (id)
DO UPDATE SET
	filename = EXCLUDED.filename,
	format = EXCLUDED.format,
	uploaded_at = EXCLUDED.uploaded_at,
	entities = EXCLUDED.entities,
	rows = EXCLUDED.rows,
	discarded_entity = EXCLUDED.discarded_entity,
	discarded_timestamp = EXCLUDED.discarded_timestamp,
	discarded_value = EXCLUDED.discarded_value`, r.datasets)
	entityIDs := ds.Entities
	if entityIDs == nil {
		entityIDs = []string{}
	}
	if _, err := tx.ExecContext(ctx, query,
		ds.ID,
		ds.Filename,
		ds.Format,
		ds.UploadedAt.UTC(),
		entityIDs,
		ds.Rows,
		ds.Discards.Entity,
		ds.Discards.Timestamp,
		ds.Discards.Value,
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (dataset_id, entity_id, ts, value)
VALUES ($1, $2, $3, $4)`, r.readings))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for entityID, s := range entities {
		for _, p := range s.Points() {
			if _, err := stmt.ExecContext(ctx, ds.ID, entityID, p.Timestamp.UTC(), p.Value); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Get loads dataset metadata.
func (r *DatasetRepository) Get(ctx context.Context, id string) (*dataset.Dataset, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("dataset repo: nil db")
	}
	if id == "" {
		return nil, dataset.ErrEmptyID
	}
	query := fmt.Sprintf(`
SELECT id, filename, format, uploaded_at, entities, rows, discarded_entity, discarded_timestamp, discarded_value
FROM %s
WHERE id = $1`, r.datasets)

	var ds dataset.Dataset
	var entities []string
	row := r.db.QueryRowContext(ctx, query, id)
	if err := row.Scan(
		&ds.ID,
		&ds.Filename,
		&ds.Format,
		&ds.UploadedAt,
		r.types.SQLScanner(&entities),
		&ds.Rows,
		&ds.Discards.Entity,
		&ds.Discards.Timestamp,
		&ds.Discards.Value,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dataset.ErrNotFound
		}
		return nil, err
	}
	ds.UploadedAt = ds.UploadedAt.In(r.location)
	ds.Entities = entities
	return &ds, nil
}

// Series loads the readings of one entity in chronological order.
func (r *DatasetRepository) Series(ctx context.Context, id, entityID string) (*series.Series, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT ts, value
FROM %s
WHERE dataset_id = $1 AND entity_id = $2
ORDER BY ts ASC`, r.readings)

	rows, err := r.db.QueryContext(ctx, query, id, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []series.Point
	for rows.Next() {
		var ts time.Time
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, err
		}
		points = append(points, series.Point{Timestamp: ts.In(r.location), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return series.FromPoints(entityID, points), nil
}

// Delete removes a dataset; readings cascade.
func (r *DatasetRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("dataset repo: nil db")
	}
	if id == "" {
		return dataset.ErrEmptyID
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.datasets), id)
	return err
}
