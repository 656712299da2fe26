package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-request-guard/internal/event"
	"go-request-guard/internal/fieldcrypt"
	"go-request-guard/internal/model"
	"go-request-guard/pkg/apierror"
)

const auditWriteTimeout = 5 * time.Second

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService turns bus events into audit entries. Client IPs are
// encrypted before they reach the store and decrypted again on Query.
type AuditService struct {
	store  AuditStore
	cipher *fieldcrypt.Cipher
	logger *slog.Logger

	mu          sync.Mutex
	unsubscribe func()
	wg          sync.WaitGroup
}

func NewAuditService(store AuditStore, cipher *fieldcrypt.Cipher, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{store: store, cipher: cipher, logger: logger}
}

// Start consumes bus events until Close. Calling it twice is a no-op.
func (s *AuditService) Start(bus event.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return
	}

	events, unsubscribe := bus.Subscribe()
	s.unsubscribe = unsubscribe

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for e := range events {
			ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
			if err := s.Record(ctx, e); err != nil {
				s.logger.Error("failed to record audit entry", "type", string(e.Type), "event_id", e.ID, "error", err)
			}
			cancel()
		}
	}()
}

// Close unsubscribes and waits for buffered events to be written.
func (s *AuditService) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.wg.Wait()
}

func (s *AuditService) Record(ctx context.Context, e event.Event) error {
	entry := model.AuditEntry{
		ID:         e.ID,
		Action:     string(e.Type),
		OccurredAt: e.Timestamp,
		Actor:      model.AuditActor{UserID: e.ActorID},
		Status:     "success",
	}
	if _, err := uuid.Parse(entry.ID); err != nil {
		entry.ID = uuid.NewString()
	}
	if _, err := time.Parse(time.RFC3339Nano, entry.OccurredAt); err != nil {
		entry.OccurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	var clientIP string
	switch payload := e.Payload.(type) {
	case event.Denial:
		clientIP = payload.ClientIP
		entry.Status = "failure"
		entry.Resource = payload.Path
		entry.Code = payload.Code
		entry.Reason = payload.Reason
		entry.Actor.UserAgent = payload.UserAgent
		entry.Details = map[string]any{
			"method": payload.Method,
			"status": payload.Status,
			"rule":   payload.Rule,
		}
	case event.RecordAccepted:
		// Only the identifier is audited; the record body stays out of the log.
		clientIP = payload.ClientIP
		entry.Action = payload.Resource + "." + payload.Action
		entry.Resource = payload.Resource
		entry.Details = map[string]any{"id": payload.ID}
	default:
		entry.Details = payload
	}

	if clientIP != "" {
		encrypted, err := s.cipher.Encrypt(clientIP)
		if err != nil {
			return err
		}
		entry.Actor.IP = encrypted
	}

	return s.store.Log(ctx, entry)
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if err := validateAuditBound(query.From); err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'from' datetime format", query.From)
	}
	if err := validateAuditBound(query.To); err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'to' datetime format", query.To)
	}

	items, meta, err := s.store.Query(ctx, query)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		return nil, model.Meta{}, model.ErrAuditUnavailable
	}

	for i := range items {
		if items[i].Actor.IP == "" {
			continue
		}
		plain, decryptErr := s.cipher.Decrypt(items[i].Actor.IP)
		if decryptErr != nil {
			// Written under another key; never show ciphertext as an address.
			items[i].Actor.IP = ""
			continue
		}
		items[i].Actor.IP = plain
	}

	return items, meta, nil
}

func validateAuditBound(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return nil
	}
	_, err := time.Parse(time.RFC3339, trimmed)
	return err
}
