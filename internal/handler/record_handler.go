package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go-request-guard/internal/event"
	"go-request-guard/internal/middleware"
	"go-request-guard/internal/model"
	"go-request-guard/internal/ratelimit"
	"go-request-guard/internal/rbac"
	"go-request-guard/internal/validation"
	"go-request-guard/pkg/apierror"
)

type RecordStore interface {
	Put(ctx context.Context, record model.Record) error
	Get(ctx context.Context, resource string, id string) (model.Record, error)
	Delete(ctx context.Context, resource string, id string) error
	List(ctx context.Context, resource string, page int, limit int) ([]model.Record, model.Meta, error)
}

// RecordHandler serves the admin intake routes of one resource. Writes are
// validated against the resource's schema, stored and announced on the bus
// as record.accepted.
type RecordHandler struct {
	resource  string
	schema    string
	store     RecordStore
	validator *validation.Validator
	bus       event.Bus
	observer  ValidationObserver
	maxBody   int64
	now       func() time.Time
}

type RecordHandlerOptions struct {
	Resource  string
	Schema    string
	Store     RecordStore
	Validator *validation.Validator
	Bus       event.Bus
	Observer  ValidationObserver
	MaxBody   int64
}

func NewRecordHandler(opts RecordHandlerOptions) *RecordHandler {
	observer := opts.Observer
	if observer == nil {
		observer = noopValidationObserver{}
	}
	return &RecordHandler{
		resource:  opts.Resource,
		schema:    opts.Schema,
		store:     opts.Store,
		validator: opts.Validator,
		bus:       opts.Bus,
		observer:  observer,
		maxBody:   opts.MaxBody,
		now:       time.Now,
	}
}

func (h *RecordHandler) Resource() string {
	return h.resource
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, meta, err := h.store.List(r.Context(), h.resource,
		parseIntOrDefault(query.Get("page"), 1),
		parseIntOrDefault(query.Get("limit"), 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, items, &meta)
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.store.Get(r.Context(), h.resource, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, record, nil)
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	value, ok := h.parse(w, r)
	if !ok {
		return
	}

	now := h.now().UTC()
	user, _ := middleware.UserFromContext(r.Context())
	record := model.Record{
		ID:        uuid.NewString(),
		Resource:  h.resource,
		Data:      value,
		CreatedBy: actorID(user),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.Put(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}

	h.accepted(w, r, user, rbac.ActionCreate, record)
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	existing, err := h.store.Get(r.Context(), h.resource, id)
	if err != nil {
		writeError(w, err)
		return
	}

	value, ok := h.parse(w, r)
	if !ok {
		return
	}

	user, _ := middleware.UserFromContext(r.Context())
	existing.Data = value
	existing.UpdatedAt = h.now().UTC()
	if err := h.store.Put(r.Context(), existing); err != nil {
		writeError(w, err)
		return
	}

	h.accepted(w, r, user, rbac.ActionUpdate, existing)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.Delete(r.Context(), h.resource, id); err != nil {
		writeError(w, err)
		return
	}

	user, _ := middleware.UserFromContext(r.Context())
	h.bus.Publish(event.New(event.TypeRecordAccepted, actorID(user), event.RecordAccepted{
		Resource: h.resource,
		Action:   string(rbac.ActionDelete),
		ID:       id,
		ClientIP: ratelimit.ClientIP(r),
	}))
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordHandler) parse(w http.ResponseWriter, r *http.Request) (any, bool) {
	body, err := readBody(w, r, h.maxBody)
	if err != nil {
		writeError(w, err)
		return nil, false
	}

	value, err := h.validator.ParseNamed(h.schema, body)
	if err != nil {
		if validation.IsValidationError(err) {
			h.observer.ObserveValidationFailure(h.schema)
		}
		writeError(w, err)
		return nil, false
	}
	return value, true
}

func (h *RecordHandler) accepted(w http.ResponseWriter, r *http.Request, user *rbac.User, action rbac.Action, record model.Record) {
	h.bus.Publish(event.New(event.TypeRecordAccepted, actorID(user), event.RecordAccepted{
		Resource: h.resource,
		Action:   string(action),
		ID:       record.ID,
		Record:   record.Data,
		ClientIP: ratelimit.ClientIP(r),
	}))

	writeSuccess(w, http.StatusAccepted, model.Accepted{
		ID:         record.ID,
		Resource:   h.resource,
		Action:     string(action),
		AcceptedAt: record.UpdatedAt,
		Record:     record.Data,
	}, nil)
}

func recordID(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if _, err := uuid.Parse(id); err != nil {
		return "", apierror.BadRequest("Invalid record id", "id must be a UUID")
	}
	return id, nil
}

func actorID(user *rbac.User) string {
	if user == nil {
		return ""
	}
	return user.ID
}
