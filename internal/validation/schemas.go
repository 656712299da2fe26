package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go-request-guard/internal/sanitize"
)

// Schemas for every record kind the admin API accepts. Tags are evaluated in
// order, so length bounds are reported before content rules.

type Customer struct {
	FirstName   string   `json:"firstName" validate:"required,max=50,personname"`
	LastName    string   `json:"lastName" validate:"required,max=50,personname"`
	Email       string   `json:"email" validate:"required,max=254,email"`
	Phone       string   `json:"phone,omitempty" validate:"omitempty,phone"`
	DateOfBirth string   `json:"dateOfBirth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes       string   `json:"notes,omitempty" validate:"omitempty,max=1000,safe"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=10,dive,required,max=30,safe"`
}

func (c *Customer) Normalize() {
	c.FirstName = sanitize.String(c.FirstName)
	c.LastName = sanitize.String(c.LastName)
	c.Email = sanitize.Email(c.Email)
	c.Phone = sanitize.Phone(c.Phone)
	c.Notes = sanitize.String(c.Notes)
	for i, tag := range c.Tags {
		c.Tags[i] = sanitize.String(tag)
	}
}

type Appointment struct {
	CustomerID  string    `json:"customerId" validate:"required,uuid"`
	StaffID     string    `json:"staffId,omitempty" validate:"omitempty,uuid"`
	ServiceName string    `json:"serviceName" validate:"required,max=100,safe"`
	StartTime   time.Time `json:"startTime" validate:"required"`
	EndTime     time.Time `json:"endTime" validate:"required,gtefield=StartTime"`
	Status      string    `json:"status,omitempty" validate:"omitempty,oneof=scheduled confirmed completed cancelled no_show"`
	Notes       string    `json:"notes,omitempty" validate:"omitempty,max=1000,safe"`
}

func (a *Appointment) Normalize() {
	a.ServiceName = sanitize.String(a.ServiceName)
	a.Notes = sanitize.String(a.Notes)
	if a.Status == "" {
		a.Status = "scheduled"
	}
}

type Payment struct {
	AppointmentID string  `json:"appointmentId" validate:"required,uuid"`
	Amount        float64 `json:"amount" validate:"required,gt=0,lte=100000"`
	Currency      string  `json:"currency" validate:"required,len=3,uppercase"`
	Method        string  `json:"method" validate:"required,oneof=cash card transfer"`
	Status        string  `json:"status,omitempty" validate:"omitempty,oneof=pending completed refunded failed"`
	Reference     string  `json:"reference,omitempty" validate:"omitempty,max=100,safe"`
}

func (p *Payment) Normalize() {
	p.Reference = sanitize.String(p.Reference)
	if p.Status == "" {
		p.Status = "pending"
	}
}

type GalleryItem struct {
	Title       string   `json:"title" validate:"required,max=100,safe"`
	Description string   `json:"description,omitempty" validate:"omitempty,max=500,safe"`
	ImageURL    string   `json:"imageUrl" validate:"required,max=2048,httpurl"`
	Category    string   `json:"category,omitempty" validate:"omitempty,max=50,safe"`
	Featured    bool     `json:"featured"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=10,dive,required,max=30,safe"`
}

func (g *GalleryItem) Normalize() {
	g.Title = sanitize.String(g.Title)
	g.Description = sanitize.HTML(g.Description)
	g.ImageURL = sanitize.URL(g.ImageURL)
	g.Category = sanitize.String(g.Category)
	for i, tag := range g.Tags {
		g.Tags[i] = sanitize.String(tag)
	}
}

type Login struct {
	Email    string `json:"email" validate:"required,max=254,email"`
	Password string `json:"password" validate:"required,max=128"`
}

func (l *Login) Normalize() {
	l.Email = sanitize.Email(l.Email)
}

type Signup struct {
	Name            string `json:"name" validate:"required,max=100,personname"`
	Email           string `json:"email" validate:"required,max=254,email"`
	Password        string `json:"password" validate:"required,min=12,max=128,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

func (s *Signup) Normalize() {
	s.Name = sanitize.String(s.Name)
	s.Email = sanitize.Email(s.Email)
}

// FileUpload describes upload metadata. Size, content type and extension
// are checked against Options at the struct level.
type FileUpload struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required,max=100"`
	Size        int64  `json:"size" validate:"required,gt=0"`
	Checksum    string `json:"checksum,omitempty" validate:"omitempty,hexadecimal,max=128"`
}

func (f *FileUpload) Normalize() {
	f.ContentType = normalizeMIME(f.ContentType)
	f.Checksum = strings.ToLower(f.Checksum)
}

type AnalyticsFilter struct {
	From    time.Time `json:"from" validate:"required"`
	To      time.Time `json:"to" validate:"required,gtefield=From"`
	Metric  string    `json:"metric" validate:"required,oneof=revenue appointments customers staff"`
	GroupBy string    `json:"groupBy,omitempty" validate:"omitempty,oneof=day week month"`
	StaffID string    `json:"staffId,omitempty" validate:"omitempty,uuid"`
}

func (a *AnalyticsFilter) Normalize() {
	if a.GroupBy == "" {
		a.GroupBy = "day"
	}
}

type AuditLogEntry struct {
	Action     string `json:"action" validate:"required,max=100,safe"`
	Resource   string `json:"resource" validate:"required,max=100,safe"`
	ResourceID string `json:"resourceId,omitempty" validate:"omitempty,max=100,safe"`
	ActorID    string `json:"actorId,omitempty" validate:"omitempty,max=100"`
	IPAddress  string `json:"ipAddress,omitempty" validate:"omitempty,ip"`
	UserAgent  string `json:"userAgent,omitempty" validate:"omitempty,max=500"`
	Status     string `json:"status" validate:"required,oneof=success failure"`
}

func (a *AuditLogEntry) Normalize() {
	a.IPAddress = sanitize.IP(a.IPAddress)
	a.UserAgent = sanitize.UserAgent(a.UserAgent)
}

type RateLimitRecord struct {
	Key         string    `json:"key" validate:"required,max=512"`
	Hits        int       `json:"hits" validate:"gte=0"`
	MaxRequests int       `json:"maxRequests" validate:"required,gt=0"`
	ResetTime   time.Time `json:"resetTime" validate:"required"`
}

type PaginationMeta struct {
	Page       int `json:"page" validate:"gte=1"`
	PageSize   int `json:"pageSize" validate:"gte=1,lte=100"`
	Total      int `json:"total" validate:"gte=0"`
	TotalPages int `json:"totalPages" validate:"gte=0"`
}

type PaginatedResponse[T any] struct {
	Data       []T            `json:"data" validate:"dive"`
	Pagination PaginationMeta `json:"pagination"`
}

var ErrUnknownSchema = errors.New("unknown schema")

var schemaNames = []string{
	"analytics-filter", "appointment", "audit-log-entry", "customer", "file-upload",
	"gallery-item", "login", "payment", "rate-limit-record", "signup",
}

func SchemaNames() []string {
	return append([]string(nil), schemaNames...)
}

// ParseNamed parses data against the schema registered under name.
func (v *Validator) ParseNamed(name string, data []byte) (any, error) {
	switch name {
	case "customer":
		return Parse[Customer](v, data)
	case "appointment":
		return Parse[Appointment](v, data)
	case "payment":
		return Parse[Payment](v, data)
	case "gallery-item":
		return Parse[GalleryItem](v, data)
	case "login":
		return Parse[Login](v, data)
	case "signup":
		return Parse[Signup](v, data)
	case "file-upload":
		return Parse[FileUpload](v, data)
	case "analytics-filter":
		return Parse[AnalyticsFilter](v, data)
	case "audit-log-entry":
		return Parse[AuditLogEntry](v, data)
	case "rate-limit-record":
		return Parse[RateLimitRecord](v, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
}
