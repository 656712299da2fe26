package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go-request-guard/internal/model"
	"go-request-guard/internal/validation"
)

type RecordSource interface {
	All(ctx context.Context, resource string) ([]model.Record, error)
}

// AnalyticsService aggregates accepted records into per-period figures.
type AnalyticsService struct {
	records RecordSource
}

func NewAnalyticsService(records RecordSource) *AnalyticsService {
	return &AnalyticsService{records: records}
}

// Report evaluates an already validated filter. Appointments are bucketed by
// start time, everything else by acceptance time.
func (s *AnalyticsService) Report(ctx context.Context, filter validation.AnalyticsFilter) (model.AnalyticsReport, error) {
	report := model.AnalyticsReport{
		Metric:  filter.Metric,
		GroupBy: filter.GroupBy,
		From:    filter.From.UTC(),
		To:      filter.To.UTC(),
		StaffID: filter.StaffID,
	}

	values := map[string]float64{}
	var err error
	switch filter.Metric {
	case "customers":
		err = s.countCustomers(ctx, filter, values)
	case "appointments":
		err = s.countAppointments(ctx, filter, values)
	case "staff":
		err = s.countStaff(ctx, filter, values)
	case "revenue":
		err = s.sumRevenue(ctx, filter, values)
	default:
		return model.AnalyticsReport{}, fmt.Errorf("%w: unknown metric %q", model.ErrInvalidInput, filter.Metric)
	}
	if err != nil {
		return model.AnalyticsReport{}, err
	}

	periods := make([]string, 0, len(values))
	for period := range values {
		periods = append(periods, period)
	}
	sort.Strings(periods)

	report.Buckets = make([]model.AnalyticsBucket, 0, len(periods))
	for _, period := range periods {
		report.Buckets = append(report.Buckets, model.AnalyticsBucket{Period: period, Value: values[period]})
		report.Total += values[period]
	}
	return report, nil
}

func (s *AnalyticsService) countCustomers(ctx context.Context, filter validation.AnalyticsFilter, values map[string]float64) error {
	records, err := s.records.All(ctx, "customers")
	if err != nil {
		return fmt.Errorf("load customers: %w", err)
	}
	for _, record := range records {
		if inRange(record.CreatedAt, filter) {
			values[period(record.CreatedAt, filter.GroupBy)]++
		}
	}
	return nil
}

func (s *AnalyticsService) countAppointments(ctx context.Context, filter validation.AnalyticsFilter, values map[string]float64) error {
	appointments, err := s.appointments(ctx)
	if err != nil {
		return err
	}
	for _, appointment := range appointments {
		if !inRange(appointment.StartTime, filter) || !staffMatches(appointment, filter.StaffID) {
			continue
		}
		values[period(appointment.StartTime, filter.GroupBy)]++
	}
	return nil
}

// countStaff counts distinct staff members with at least one appointment in
// each period.
func (s *AnalyticsService) countStaff(ctx context.Context, filter validation.AnalyticsFilter, values map[string]float64) error {
	appointments, err := s.appointments(ctx)
	if err != nil {
		return err
	}

	seen := map[string]map[string]struct{}{}
	for _, appointment := range appointments {
		if appointment.StaffID == "" || !inRange(appointment.StartTime, filter) || !staffMatches(appointment, filter.StaffID) {
			continue
		}
		key := period(appointment.StartTime, filter.GroupBy)
		if seen[key] == nil {
			seen[key] = map[string]struct{}{}
		}
		seen[key][appointment.StaffID] = struct{}{}
	}
	for key, staff := range seen {
		values[key] = float64(len(staff))
	}
	return nil
}

// sumRevenue adds pending and completed payments. With a staff filter only
// payments for that member's appointments count.
func (s *AnalyticsService) sumRevenue(ctx context.Context, filter validation.AnalyticsFilter, values map[string]float64) error {
	records, err := s.records.All(ctx, "payments")
	if err != nil {
		return fmt.Errorf("load payments: %w", err)
	}

	var byID map[string]validation.Appointment
	if filter.StaffID != "" {
		byID, err = s.appointmentsByID(ctx)
		if err != nil {
			return err
		}
	}

	for _, record := range records {
		payment, ok := record.Data.(validation.Payment)
		if !ok || payment.Status == "refunded" || payment.Status == "failed" {
			continue
		}
		if !inRange(record.CreatedAt, filter) {
			continue
		}
		if filter.StaffID != "" {
			appointment, found := byID[payment.AppointmentID]
			if !found || appointment.StaffID != filter.StaffID {
				continue
			}
		}
		values[period(record.CreatedAt, filter.GroupBy)] += payment.Amount
	}
	return nil
}

func (s *AnalyticsService) appointments(ctx context.Context) ([]validation.Appointment, error) {
	records, err := s.records.All(ctx, "appointments")
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	out := make([]validation.Appointment, 0, len(records))
	for _, record := range records {
		if appointment, ok := record.Data.(validation.Appointment); ok {
			out = append(out, appointment)
		}
	}
	return out, nil
}

func (s *AnalyticsService) appointmentsByID(ctx context.Context) (map[string]validation.Appointment, error) {
	records, err := s.records.All(ctx, "appointments")
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	out := make(map[string]validation.Appointment, len(records))
	for _, record := range records {
		if appointment, ok := record.Data.(validation.Appointment); ok {
			out[record.ID] = appointment
		}
	}
	return out, nil
}

func staffMatches(appointment validation.Appointment, staffID string) bool {
	return staffID == "" || appointment.StaffID == staffID
}

func inRange(at time.Time, filter validation.AnalyticsFilter) bool {
	return !at.Before(filter.From) && !at.After(filter.To)
}

// period labels at by day (2026-04-02), ISO week (2026-W14) or month
// (2026-04).
func period(at time.Time, groupBy string) string {
	at = at.UTC()
	switch groupBy {
	case "week":
		year, week := at.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case "month":
		return at.Format("2006-01")
	default:
		return at.Format("2006-01-02")
	}
}
