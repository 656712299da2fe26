package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-guard/internal/model"
)

func entryAt(i int, action string, status string) model.AuditEntry {
	at := time.Date(2026, 1, 1, 12, 0, i, 0, time.UTC)
	return model.AuditEntry{
		ID:         fmt.Sprintf("e-%02d", i),
		Action:     action,
		OccurredAt: at.Format(time.RFC3339Nano),
		Actor:      model.AuditActor{UserID: fmt.Sprintf("u-%d", i%2)},
		Status:     status,
		Resource:   "/api/admin/customers",
	}
}

func TestMemoryAuditRepository_RingOverwritesOldest(t *testing.T) {
	repo := NewMemoryAuditRepository(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Log(ctx, entryAt(i, "csrf.rejected", "failure")))
	}

	assert.Equal(t, 3, repo.Len())

	items, meta, err := repo.Query(ctx, model.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"e-04", "e-03", "e-02"}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, model.Meta{Page: 1, Limit: 50, Total: 3, TotalPages: 1}, meta)
}

func TestMemoryAuditRepository_Filters(t *testing.T) {
	repo := NewMemoryAuditRepository(0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		action, status := "ratelimit.exceeded", "failure"
		if i%3 == 0 {
			action, status = "customers.create", "success"
		}
		require.NoError(t, repo.Log(ctx, entryAt(i, action, status)))
	}

	t.Run("action is case insensitive", func(t *testing.T) {
		items, meta, err := repo.Query(ctx, model.AuditQuery{Action: "CUSTOMERS.CREATE"})
		require.NoError(t, err)
		assert.Equal(t, 4, meta.Total)
		for _, item := range items {
			assert.Equal(t, "success", item.Status)
		}
	})

	t.Run("actor and status", func(t *testing.T) {
		items, _, err := repo.Query(ctx, model.AuditQuery{ActorID: "u-1", Status: "failure"})
		require.NoError(t, err)
		for _, item := range items {
			assert.Equal(t, "u-1", item.Actor.UserID)
			assert.Equal(t, "failure", item.Status)
		}
		assert.Len(t, items, 3)
	})

	t.Run("time range", func(t *testing.T) {
		items, _, err := repo.Query(ctx, model.AuditQuery{
			From: "2026-01-01T12:00:03Z",
			To:   "2026-01-01T12:00:05Z",
		})
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "e-05", items[0].ID)
		assert.Equal(t, "e-03", items[2].ID)
	})

	t.Run("paging", func(t *testing.T) {
		items, meta, err := repo.Query(ctx, model.AuditQuery{Page: 3, Limit: 4})
		require.NoError(t, err)
		assert.Len(t, items, 2)
		assert.Equal(t, model.Meta{Page: 3, Limit: 4, Total: 10, TotalPages: 3}, meta)

		items, _, err = repo.Query(ctx, model.AuditQuery{Page: 9, Limit: 4})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("limit is capped", func(t *testing.T) {
		_, meta, err := repo.Query(ctx, model.AuditQuery{Limit: 5000})
		require.NoError(t, err)
		assert.Equal(t, 200, meta.Limit)
	})

	t.Run("bad bound", func(t *testing.T) {
		_, _, err := repo.Query(ctx, model.AuditQuery{From: "yesterday"})
		assert.Error(t, err)
	})
}

func TestMemoryAuditRepository_CodeFilter(t *testing.T) {
	repo := NewMemoryAuditRepository(0)
	ctx := context.Background()

	codes := []string{"CSRF_REQUIRED", "RATE_LIMIT_EXCEEDED", "CSRF_REQUIRED", "", "FORBIDDEN"}
	for i, code := range codes {
		entry := entryAt(i, "csrf.rejected", "failure")
		entry.Code = code
		require.NoError(t, repo.Log(ctx, entry))
	}

	items, meta, err := repo.Query(ctx, model.AuditQuery{Code: "csrf_required"})
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Total)
	assert.Equal(t, []string{"e-02", "e-00"}, []string{items[0].ID, items[1].ID})
}
