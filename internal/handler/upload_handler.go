package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-request-guard/internal/event"
	"go-request-guard/internal/middleware"
	"go-request-guard/internal/model"
	"go-request-guard/internal/ratelimit"
	"go-request-guard/internal/validation"
	"go-request-guard/pkg/apierror"
)

const (
	uploadFormField   = "file"
	multipartOverhead = int64(1 << 20)
	sniffLength       = 512
)

// UploadHandler accepts media uploads, either as a multipart file or as JSON
// metadata describing a file stored elsewhere. Multipart content is sniffed
// and hashed while streaming; the declared type is ignored.
type UploadHandler struct {
	validator *validation.Validator
	bus       event.Bus
	observer  ValidationObserver
	now       func() time.Time
}

func NewUploadHandler(validator *validation.Validator, bus event.Bus, observer ValidationObserver) *UploadHandler {
	if observer == nil {
		observer = noopValidationObserver{}
	}
	return &UploadHandler{validator: validator, bus: bus, observer: observer, now: time.Now}
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	maxSize := h.validator.Options().MaxFileSize

	var (
		upload validation.FileUpload
		err    error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
		upload, err = h.readMultipart(r)
	} else {
		var body []byte
		body, err = readBody(w, r, defaultMaxBodyBytes)
		if err == nil {
			upload, err = validation.Parse[validation.FileUpload](h.validator, body)
		}
	}
	if err != nil {
		if validation.IsValidationError(err) {
			h.observer.ObserveValidationFailure("file-upload")
		}
		writeError(w, err)
		return
	}

	user, _ := middleware.UserFromContext(r.Context())
	id := uuid.NewString()
	h.bus.Publish(event.New(event.TypeRecordAccepted, actorID(user), event.RecordAccepted{
		Resource: "media",
		Action:   "upload",
		ID:       id,
		Record:   upload,
		ClientIP: ratelimit.ClientIP(r),
	}))

	writeSuccess(w, http.StatusAccepted, model.Accepted{
		ID:         id,
		Resource:   "media",
		Action:     "upload",
		AcceptedAt: h.now().UTC(),
		Record:     upload,
	}, nil)
}

func (h *UploadHandler) readMultipart(r *http.Request) (validation.FileUpload, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return validation.FileUpload{}, apierror.BadRequest("Invalid multipart body", "")
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return validation.FileUpload{}, &validation.Error{Fields: map[string]string{uploadFormField: "file is required"}}
		}
		if err != nil {
			return validation.FileUpload{}, classifyReadError(err)
		}
		if part.FormName() != uploadFormField {
			_ = part.Close()
			continue
		}

		upload, err := h.inspect(part)
		_ = part.Close()
		return upload, err
	}
}

func (h *UploadHandler) inspect(part *multipart.Part) (validation.FileUpload, error) {
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(part, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return validation.FileUpload{}, classifyReadError(err)
	}
	head = head[:n]

	hasher := sha256.New()
	size, err := io.Copy(hasher, io.MultiReader(bytes.NewReader(head), part))
	if err != nil {
		return validation.FileUpload{}, classifyReadError(err)
	}

	upload := validation.FileUpload{
		ContentType: validation.DetectContentType(head),
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		Filename:    strings.TrimSpace(part.FileName()),
	}

	if err := h.validator.Validate(&upload); err != nil {
		return validation.FileUpload{}, err
	}
	upload.Normalize()
	return upload, nil
}

func classifyReadError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}
	return apierror.BadRequest("Invalid multipart body", "")
}
