package memory

import (
	"context"
	"sync"

	"load-analytics/internal/analysis/domain/dataset"
	"load-analytics/internal/analysis/domain/series"
)

type record struct {
	dataset  dataset.Dataset
	entities map[string]*series.Series
}

// DatasetRepository is an in-memory repository for single-node use and tests.
type DatasetRepository struct {
	mu   sync.RWMutex
	data map[string]record
}

// NewDatasetRepository constructs a repository.
func NewDatasetRepository() *DatasetRepository {
	return &DatasetRepository{data: make(map[string]record)}
}

// Save stores a dataset, replacing any previous one with the same id.
func (r *DatasetRepository) Save(ctx context.Context, ds *dataset.Dataset, entities map[string]*series.Series) error {
	_ = ctx
	if ds == nil {
		return dataset.ErrNilDataset
	}
	if ds.ID == "" {
		return dataset.ErrEmptyID
	}
	copied := make(map[string]*series.Series, len(entities))
	for id, s := range entities {
		copied[id] = s
	}
	stored := *ds
	stored.Entities = append([]string(nil), ds.Entities...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[ds.ID] = record{dataset: stored, entities: copied}
	return nil
}

// Get loads a dataset by id.
func (r *DatasetRepository) Get(ctx context.Context, id string) (*dataset.Dataset, error) {
	_ = ctx
	if id == "" {
		return nil, dataset.ErrEmptyID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[id]
	if !ok {
		return nil, dataset.ErrNotFound
	}
	out := rec.dataset
	out.Entities = append([]string(nil), rec.dataset.Entities...)
	return &out, nil
}

// Series returns the series of one entity.
func (r *DatasetRepository) Series(ctx context.Context, id, entityID string) (*series.Series, error) {
	_ = ctx
	if id == "" {
		return nil, dataset.ErrEmptyID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[id]
	if !ok {
		return nil, dataset.ErrNotFound
	}
	if s, ok := rec.entities[entityID]; ok {
		return s, nil
	}
	return series.Empty(entityID), nil
}

// Delete removes a dataset. Deleting an unknown id is not an error.
func (r *DatasetRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return nil
}
