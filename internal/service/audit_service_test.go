package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-request-guard/internal/event"
	"go-request-guard/internal/fieldcrypt"
	"go-request-guard/internal/model"
	"go-request-guard/internal/repository"
	"go-request-guard/pkg/apierror"
)

type mockAuditStore struct {
	mock.Mock
}

func (m *mockAuditStore) Log(ctx context.Context, entry model.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditStore) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	args := m.Called(ctx, query)
	items, _ := args.Get(0).([]model.AuditEntry)
	return items, args.Get(1).(model.Meta), args.Error(2)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCipher(t *testing.T) *fieldcrypt.Cipher {
	t.Helper()
	cipher, err := fieldcrypt.New([]byte("audit-service-encryption-key-0123456789"))
	require.NoError(t, err)
	return cipher
}

func TestAuditService_RecordEncryptsClientIP(t *testing.T) {
	store := repository.NewMemoryAuditRepository(10)
	svc := NewAuditService(store, newTestCipher(t), quietLogger())
	ctx := context.Background()

	denied := event.New(event.TypeCSRFRejected, "user-9", event.Denial{
		Method:    "POST",
		Path:      "/api/admin/customers",
		ClientIP:  "203.0.113.7",
		UserAgent: "guard-test/1.0",
		Status:    403,
		Code:      "CSRF_REQUIRED",
		Reason:    "CSRF token required for this request",
		Rule:      "customers.create",
	})
	require.NoError(t, svc.Record(ctx, denied))

	raw, _, err := store.Query(ctx, model.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.NotEqual(t, "203.0.113.7", raw[0].Actor.IP)
	assert.NotContains(t, raw[0].Actor.IP, "203.0.113")
	assert.Equal(t, "csrf.rejected", raw[0].Action)
	assert.Equal(t, "failure", raw[0].Status)
	assert.Equal(t, "CSRF_REQUIRED", raw[0].Code)

	items, meta, err := svc.Query(ctx, model.AuditQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Total)
	assert.Equal(t, "203.0.113.7", items[0].Actor.IP)
	assert.Equal(t, "user-9", items[0].Actor.UserID)
	assert.Equal(t, denied.ID, items[0].ID)
}

func TestAuditService_RecordAcceptedOmitsBody(t *testing.T) {
	store := repository.NewMemoryAuditRepository(10)
	svc := NewAuditService(store, newTestCipher(t), quietLogger())

	accepted := event.New(event.TypeRecordAccepted, "user-2", event.RecordAccepted{
		Resource: "customers",
		Action:   "create",
		ID:       "c-1",
		Record:   map[string]any{"email": "jane@example.com"},
		ClientIP: "198.51.100.20",
	})
	require.NoError(t, svc.Record(context.Background(), accepted))

	items, _, err := svc.Query(context.Background(), model.AuditQuery{Action: "customers.create"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "success", items[0].Status)
	assert.Equal(t, map[string]any{"id": "c-1"}, items[0].Details)
}

func TestAuditService_StartConsumesBus(t *testing.T) {
	store := repository.NewMemoryAuditRepository(10)
	svc := NewAuditService(store, newTestCipher(t), quietLogger())
	bus := event.NewBus(quietLogger())

	svc.Start(bus)
	svc.Start(bus)
	assert.Equal(t, 1, bus.Subscribers())

	bus.Publish(event.New(event.TypeRateLimitExceeded, "", event.Denial{Path: "/api/v1/validate/login", ClientIP: "192.0.2.1"}))
	bus.Publish(event.New(event.TypeAuthzDenied, "user-3", event.Denial{Path: "/api/admin/audit", ClientIP: "192.0.2.2"}))

	svc.Close()
	assert.Equal(t, 0, bus.Subscribers())
	assert.Equal(t, 2, store.Len())
}

func TestAuditService_QueryErrors(t *testing.T) {
	t.Run("bad bound", func(t *testing.T) {
		store := new(mockAuditStore)
		svc := NewAuditService(store, newTestCipher(t), quietLogger())

		_, _, err := svc.Query(context.Background(), model.AuditQuery{To: "tomorrow"})
		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "BAD_REQUEST", apiErr.Code)
		store.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(mockAuditStore)
		store.On("Query", mock.Anything, mock.Anything).Return(nil, model.Meta{}, errors.New("connection reset"))
		svc := NewAuditService(store, newTestCipher(t), quietLogger())

		_, _, err := svc.Query(context.Background(), model.AuditQuery{})
		assert.ErrorIs(t, err, model.ErrAuditUnavailable)
		store.AssertExpectations(t)
	})

	t.Run("foreign ciphertext is hidden", func(t *testing.T) {
		store := new(mockAuditStore)
		store.On("Query", mock.Anything, mock.Anything).Return([]model.AuditEntry{
			{ID: "x", Actor: model.AuditActor{IP: "not-ciphertext"}},
		}, model.Meta{Page: 1, Limit: 50, Total: 1, TotalPages: 1}, nil)
		svc := NewAuditService(store, newTestCipher(t), quietLogger())

		items, _, err := svc.Query(context.Background(), model.AuditQuery{})
		require.NoError(t, err)
		assert.Empty(t, items[0].Actor.IP)
	})
}

func TestAuditService_RecordRepairsIdentity(t *testing.T) {
	store := new(mockAuditStore)
	store.On("Log", mock.Anything, mock.MatchedBy(func(entry model.AuditEntry) bool {
		_, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
		return entry.ID != "" && entry.ID != "bad" && err == nil
	})).Return(nil).Once()

	svc := NewAuditService(store, newTestCipher(t), quietLogger())
	err := svc.Record(context.Background(), event.Event{ID: "bad", Type: "custom", Timestamp: "never"})
	require.NoError(t, err)
	store.AssertExpectations(t)
}
