package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-request-guard/internal/model"
	"go-request-guard/internal/validation"
)

// ValidationObserver counts rejected records per schema.
type ValidationObserver interface {
	ObserveValidationFailure(schema string)
}

type noopValidationObserver struct{}

func (noopValidationObserver) ObserveValidationFailure(string) {}

type ValidateHandler struct {
	validator *validation.Validator
	observer  ValidationObserver
	maxBody   int64
}

func NewValidateHandler(validator *validation.Validator, observer ValidationObserver, maxBody int64) *ValidateHandler {
	if observer == nil {
		observer = noopValidationObserver{}
	}
	return &ValidateHandler{validator: validator, observer: observer, maxBody: maxBody}
}

// Validate checks a JSON body against a named schema and echoes the
// sanitized value.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	h.validate(w, r, strings.ToLower(strings.TrimSpace(chi.URLParam(r, "schema"))))
}

// Schema serves one fixed schema, for routes that need their own rule.
func (h *ValidateHandler) Schema(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.validate(w, r, name)
	}
}

func (h *ValidateHandler) validate(w http.ResponseWriter, r *http.Request, schema string) {
	body, err := readBody(w, r, h.maxBody)
	if err != nil {
		writeError(w, err)
		return
	}

	value, err := h.validator.ParseNamed(schema, body)
	if err != nil {
		if validation.IsValidationError(err) {
			h.observer.ObserveValidationFailure(schema)
		}
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.ValidationResult{Schema: schema, Valid: true, Value: redactSecrets(value)}, nil)
}

// Passwords are checked but never echoed.
func redactSecrets(value any) any {
	switch v := value.(type) {
	case validation.Login:
		v.Password = ""
		return v
	case validation.Signup:
		v.Password = ""
		v.ConfirmPassword = ""
		return v
	default:
		return value
	}
}
