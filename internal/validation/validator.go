package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"go-request-guard/internal/sanitize"
)

const (
	DefaultMinAge      = 13
	DefaultMaxAge      = 120
	DefaultMaxFileSize = int64(10 * 1024 * 1024)

	dateLayout = "2006-01-02"
)

var (
	phonePattern      = regexp.MustCompile(`^\+?[0-9\s\-()]{7,20}$`)
	personNamePattern = regexp.MustCompile(`^[\p{L}\p{M} '.\-]+$`)
)

var commonPasswords = []string{
	"password", "123456", "12345678", "123456789", "qwerty", "abc123",
	"letmein", "welcome", "iloveyou", "monkey", "dragon", "football",
	"baseball", "sunshine", "princess", "trustno1", "111111", "123123",
	"admin123", "passw0rd", "changeme",
}

type Options struct {
	MinAge           int
	MaxAge           int
	MaxFileSize      int64
	AllowedMIMETypes []string
	Now              func() time.Time
}

type Validator struct {
	validate *validator.Validate
	opts     Options
}

// Error carries every violated field of a rejected record, keyed by the
// field's JSON name.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}

	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func IsValidationError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

func New(opts Options) *Validator {
	if opts.MinAge <= 0 {
		opts.MinAge = DefaultMinAge
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if len(opts.AllowedMIMETypes) == 0 {
		opts.AllowedMIMETypes = DefaultAllowedMIMETypes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("password", validatePassword)
	_ = v.RegisterValidation("personname", validatePersonName)
	_ = v.RegisterValidation("phone", validatePhone)
	_ = v.RegisterValidation("safe", validateSafe)
	_ = v.RegisterValidation("httpurl", validateHTTPURL)

	result := &Validator{validate: v, opts: opts}
	v.RegisterStructValidation(result.validateCustomer, Customer{})
	v.RegisterStructValidation(result.validateFileUpload, FileUpload{})

	return result
}

func (v *Validator) Options() Options {
	opts := v.opts
	opts.AllowedMIMETypes = append([]string(nil), v.opts.AllowedMIMETypes...)
	return opts
}

// Validate checks a schema value and returns nil or an *Error listing every
// violated field.
func (v *Validator) Validate(value any) error {
	if value == nil {
		return &Error{Fields: map[string]string{"body": "request body is required"}}
	}

	err := v.validate.Struct(value)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return &Error{Fields: map[string]string{"body": "request body is not a record"}}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Fields: map[string]string{"body": err.Error()}}
	}

	root := reflect.Indirect(reflect.ValueOf(value)).Type().Name() + "."
	fields := make(map[string]string, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		key := strings.TrimPrefix(fieldErr.Namespace(), root)
		if _, exists := fields[key]; exists {
			continue
		}
		fields[key] = message(fieldErr)
	}

	return &Error{Fields: fields}
}

// Normalizer is implemented by schemas that clean their fields after they
// pass validation.
type Normalizer interface {
	Normalize()
}

// Parse decodes a JSON document into T, rejecting unknown fields, validates
// it and normalizes the accepted value.
func Parse[T any](v *Validator, data []byte) (T, error) {
	var out T

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&out); err != nil {
		return out, &Error{Fields: map[string]string{"body": decodeMessage(err)}}
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return out, &Error{Fields: map[string]string{"body": "request body must contain a single JSON object"}}
	}

	if err := v.Validate(&out); err != nil {
		return out, err
	}

	if normalizer, ok := any(&out).(Normalizer); ok {
		normalizer.Normalize()
	}

	return out, nil
}

func decodeMessage(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	default:
		return "malformed JSON body"
	}
}

func message(fieldErr validator.FieldError) string {
	isString := fieldErr.Kind() == reflect.String
	isCollection := fieldErr.Kind() == reflect.Slice || fieldErr.Kind() == reflect.Map

	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "min":
		if isString {
			return fmt.Sprintf("must be at least %s characters long", fieldErr.Param())
		}
		if isCollection {
			return fmt.Sprintf("must contain at least %s items", fieldErr.Param())
		}
		return fmt.Sprintf("must be at least %s", fieldErr.Param())
	case "max":
		if isString {
			return fmt.Sprintf("must be at most %s characters long", fieldErr.Param())
		}
		if isCollection {
			return fmt.Sprintf("must contain at most %s items", fieldErr.Param())
		}
		return fmt.Sprintf("must be at most %s", fieldErr.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters long", fieldErr.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fieldErr.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fieldErr.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fieldErr.Param())
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid identifier"
	case "ip":
		return "must be a valid IP address"
	case "oneof":
		return "must be one of: " + fieldErr.Param()
	case "uppercase":
		return "must be uppercase"
	case "datetime":
		return "must be a date formatted as " + fieldErr.Param()
	case "eqfield":
		if fieldErr.Field() == "confirmPassword" {
			return "passwords do not match"
		}
		return "must match " + fieldErr.Param()
	case "gtefield":
		return "must not be before " + fieldErr.Param()
	case "password":
		return "must contain upper and lower case letters, a digit and a symbol, and must not be a common password"
	case "personname":
		return "may only contain letters, spaces, apostrophes, hyphens and periods"
	case "phone":
		return "must be a valid phone number"
	case "safe":
		return "contains disallowed content"
	case "httpurl":
		return "must be an http or https URL"
	case "agerange":
		return "age must be between " + strings.ReplaceAll(fieldErr.Param(), "-", " and ")
	case "filesize":
		return "file exceeds the maximum size of " + fieldErr.Param() + " bytes"
	case "mimetype":
		return "file type is not allowed"
	case "extension":
		return "file extension does not match its content type"
	case "filename":
		return "file name contains disallowed characters"
	default:
		return "is invalid"
	}
}

func validatePassword(fl validator.FieldLevel) bool {
	value := fl.Field().String()

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, char := range value {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return false
	}

	return !IsCommonPassword(value)
}

// IsCommonPassword reports whether the password contains a deny-listed
// password, ignoring case.
func IsCommonPassword(password string) bool {
	lowered := strings.ToLower(password)
	for _, common := range commonPasswords {
		if strings.Contains(lowered, common) {
			return true
		}
	}
	return false
}

func validatePersonName(fl validator.FieldLevel) bool {
	return personNamePattern.MatchString(fl.Field().String())
}

func validatePhone(fl validator.FieldLevel) bool {
	return phonePattern.MatchString(fl.Field().String())
}

func validateSafe(fl validator.FieldLevel) bool {
	return !sanitize.ContainsSuspiciousPatterns(fl.Field().String())
}

func validateHTTPURL(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return sanitize.URL(value) != ""
}

func (v *Validator) validateCustomer(sl validator.StructLevel) {
	customer := sl.Current().Interface().(Customer)
	if customer.DateOfBirth == "" {
		return
	}

	born, err := time.Parse(dateLayout, customer.DateOfBirth)
	if err != nil {
		return
	}

	age := ageAt(born, v.opts.Now())
	if age < v.opts.MinAge || age > v.opts.MaxAge {
		sl.ReportError(customer.DateOfBirth, "dateOfBirth", "DateOfBirth", "agerange", fmt.Sprintf("%d-%d", v.opts.MinAge, v.opts.MaxAge))
	}
}

func (v *Validator) validateFileUpload(sl validator.StructLevel) {
	upload := sl.Current().Interface().(FileUpload)

	if upload.Size > v.opts.MaxFileSize {
		sl.ReportError(upload.Size, "size", "Size", "filesize", fmt.Sprintf("%d", v.opts.MaxFileSize))
	}

	if upload.ContentType != "" && !mimeAllowed(upload.ContentType, v.opts.AllowedMIMETypes) {
		sl.ReportError(upload.ContentType, "contentType", "ContentType", "mimetype", "")
		return
	}

	if upload.Filename == "" {
		return
	}
	if sanitize.Filename(upload.Filename) != upload.Filename || sanitize.ContainsSuspiciousPatterns(upload.Filename) {
		sl.ReportError(upload.Filename, "filename", "Filename", "filename", "")
		return
	}
	if upload.ContentType != "" && !ExtensionMatchesMIME(upload.Filename, upload.ContentType) {
		sl.ReportError(upload.Filename, "filename", "Filename", "extension", "")
	}
}

func ageAt(born time.Time, now time.Time) int {
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age
}
