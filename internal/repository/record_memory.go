package repository

import (
	"context"
	"sort"
	"sync"

	"go-request-guard/internal/model"
)

// MemoryRecordRepository holds accepted admin records per resource. It stands
// in for the system of record, which lives outside this service.
type MemoryRecordRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]model.Record
}

func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{records: map[string]map[string]model.Record{}}
}

func (r *MemoryRecordRepository) Put(_ context.Context, record model.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.records[record.Resource]
	if !ok {
		byID = map[string]model.Record{}
		r.records[record.Resource] = byID
	}
	if existing, found := byID[record.ID]; found {
		record.CreatedAt = existing.CreatedAt
		record.CreatedBy = existing.CreatedBy
	}
	byID[record.ID] = record
	return nil
}

func (r *MemoryRecordRepository) Get(_ context.Context, resource string, id string) (model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[resource][id]
	if !ok {
		return model.Record{}, model.ErrNotFound
	}
	return record, nil
}

func (r *MemoryRecordRepository) Delete(_ context.Context, resource string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[resource][id]; !ok {
		return model.ErrNotFound
	}
	delete(r.records[resource], id)
	return nil
}

// List pages through a resource's records, oldest first.
func (r *MemoryRecordRepository) List(_ context.Context, resource string, page int, limit int) ([]model.Record, model.Meta, error) {
	page, limit = normalizePage(page, limit)

	r.mu.RLock()
	items := make([]model.Record, 0, len(r.records[resource]))
	for _, record := range r.records[resource] {
		items = append(items, record)
	}
	r.mu.RUnlock()

	sortRecords(items)

	total := len(items)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	return items[start:end], pageMeta(page, limit, total), nil
}

// All returns every record of a resource, oldest first.
func (r *MemoryRecordRepository) All(_ context.Context, resource string) ([]model.Record, error) {
	r.mu.RLock()
	items := make([]model.Record, 0, len(r.records[resource]))
	for _, record := range r.records[resource] {
		items = append(items, record)
	}
	r.mu.RUnlock()

	sortRecords(items)
	return items, nil
}

func sortRecords(items []model.Record) {
	sort.Slice(items, func(i int, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
