package dataset

import (
	"context"
	"errors"
	"time"

	"load-analytics/internal/analysis/domain/series"
)

var (
	// ErrNotFound is returned when a dataset does not exist.
	ErrNotFound = errors.New("dataset: not found")
	// ErrEmptyID is returned when a dataset has no id.
	ErrEmptyID = errors.New("dataset: empty id")
	// ErrNilDataset is returned when saving a nil dataset.
	ErrNilDataset = errors.New("dataset: nil dataset")
)

// Dataset is one normalized upload.
type Dataset struct {
	ID         string          `json:"id"`
	Filename   string          `json:"filename"`
	Format     string          `json:"format"`
	UploadedAt time.Time       `json:"uploaded_at"`
	Entities   []string        `json:"entities"`
	Rows       int             `json:"rows"`
	Discards   series.Discards `json:"discards"`
}

// Repository persists datasets and their per-entity series.
type Repository interface {
	Save(ctx context.Context, ds *Dataset, entities map[string]*series.Series) error
	Get(ctx context.Context, id string) (*Dataset, error)
	// Series returns the readings of one entity; unknown entities yield an
	// empty series.
	Series(ctx context.Context, id, entityID string) (*series.Series, error)
	Delete(ctx context.Context, id string) error
}
