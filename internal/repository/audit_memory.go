package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-request-guard/internal/model"
)

const (
	DefaultAuditCapacity = 1000

	defaultPageLimit = 50
	maxPageLimit     = 200
)

// MemoryAuditRepository keeps the most recent entries in a fixed-size ring.
// Used when no database is configured.
type MemoryAuditRepository struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
	next    int
	full    bool
}

func NewMemoryAuditRepository(capacity int) *MemoryAuditRepository {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &MemoryAuditRepository{entries: make([]model.AuditEntry, capacity)}
}

func (r *MemoryAuditRepository) Log(_ context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

func (r *MemoryAuditRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Query filters newest first. Timestamps that fail to parse never match a
// from/to bound.
func (r *MemoryAuditRepository) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = normalizeAuditQuery(query)

	from, err := parseOptionalAuditTime(query.From)
	if err != nil {
		return nil, model.Meta{}, err
	}
	to, err := parseOptionalAuditTime(query.To)
	if err != nil {
		return nil, model.Meta{}, err
	}

	action := strings.ToLower(strings.TrimSpace(query.Action))
	status := strings.ToLower(strings.TrimSpace(query.Status))
	code := strings.TrimSpace(query.Code)
	actorID := strings.TrimSpace(query.ActorID)
	pathFilter := strings.ToLower(strings.TrimSpace(query.Path))

	r.mu.RLock()
	newestFirst := r.newestFirstLocked()
	r.mu.RUnlock()

	items := make([]model.AuditEntry, 0, len(newestFirst))
	for _, entry := range newestFirst {
		if action != "" && strings.ToLower(entry.Action) != action {
			continue
		}
		if status != "" && strings.ToLower(entry.Status) != status {
			continue
		}
		if code != "" && !strings.EqualFold(entry.Code, code) {
			continue
		}
		if actorID != "" && entry.Actor.UserID != actorID {
			continue
		}
		if pathFilter != "" && !strings.Contains(strings.ToLower(entry.Resource), pathFilter) {
			continue
		}
		if !from.IsZero() || !to.IsZero() {
			at, timeErr := parseAuditTime(entry.OccurredAt)
			if timeErr != nil {
				continue
			}
			if !from.IsZero() && at.Before(from) {
				continue
			}
			if !to.IsZero() && at.After(to) {
				continue
			}
		}
		items = append(items, entry)
	}

	total := len(items)
	start := min((query.Page-1)*query.Limit, total)
	end := min(start+query.Limit, total)

	return items[start:end], pageMeta(query.Page, query.Limit, total), nil
}

func (r *MemoryAuditRepository) newestFirstLocked() []model.AuditEntry {
	count := r.next
	if r.full {
		count = len(r.entries)
	}

	out := make([]model.AuditEntry, 0, count)
	for i := 1; i <= count; i++ {
		idx := (r.next - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}

func normalizeAuditQuery(query model.AuditQuery) model.AuditQuery {
	query.Page, query.Limit = normalizePage(query.Page, query.Limit)
	return query
}

func normalizePage(page int, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func pageMeta(page int, limit int, total int) model.Meta {
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return model.Meta{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	return parseAuditTime(trimmed)
}

func parseAuditTime(raw string) (time.Time, error) {
	if value, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}
