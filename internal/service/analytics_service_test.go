package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-guard/internal/model"
	"go-request-guard/internal/repository"
	"go-request-guard/internal/validation"
)

const (
	staffA = "8d1f6a52-6b0e-4f43-9c1c-6f3e2b7a0d11"
	staffB = "2b5c7e19-0a4d-4e8f-b7f2-93c1d4e6a822"
)

func seedRecords(t *testing.T) *repository.MemoryRecordRepository {
	t.Helper()

	repo := repository.NewMemoryRecordRepository()
	ctx := context.Background()
	day := func(d int, h int) time.Time { return time.Date(2026, time.April, d, h, 0, 0, 0, time.UTC) }

	put := func(resource string, id string, at time.Time, data any) {
		require.NoError(t, repo.Put(ctx, model.Record{ID: id, Resource: resource, Data: data, CreatedAt: at, UpdatedAt: at}))
	}

	put("customers", "c1", day(1, 9), validation.Customer{FirstName: "Ada"})
	put("customers", "c2", day(1, 12), validation.Customer{FirstName: "Grace"})
	put("customers", "c3", day(3, 10), validation.Customer{FirstName: "Edsger"})

	put("appointments", "a1", day(1, 8), validation.Appointment{StaffID: staffA, StartTime: day(2, 10), EndTime: day(2, 11)})
	put("appointments", "a2", day(1, 8), validation.Appointment{StaffID: staffB, StartTime: day(2, 14), EndTime: day(2, 15)})
	put("appointments", "a3", day(1, 8), validation.Appointment{StaffID: staffA, StartTime: day(9, 10), EndTime: day(9, 11)})

	put("payments", "p1", day(2, 11), validation.Payment{AppointmentID: "a1", Amount: 40, Status: "completed"})
	put("payments", "p2", day(2, 15), validation.Payment{AppointmentID: "a2", Amount: 60, Status: "pending"})
	put("payments", "p3", day(2, 16), validation.Payment{AppointmentID: "a2", Amount: 60, Status: "refunded"})
	put("payments", "p4", day(9, 11), validation.Payment{AppointmentID: "a3", Amount: 25, Status: "completed"})

	return repo
}

func aprilFilter(metric string, groupBy string) validation.AnalyticsFilter {
	return validation.AnalyticsFilter{
		From:    time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2026, time.April, 30, 23, 59, 59, 0, time.UTC),
		Metric:  metric,
		GroupBy: groupBy,
	}
}

func TestAnalyticsService_Report(t *testing.T) {
	svc := NewAnalyticsService(seedRecords(t))
	ctx := context.Background()

	t.Run("customers by day", func(t *testing.T) {
		report, err := svc.Report(ctx, aprilFilter("customers", "day"))
		require.NoError(t, err)
		assert.Equal(t, float64(3), report.Total)
		assert.Equal(t, []model.AnalyticsBucket{
			{Period: "2026-04-01", Value: 2},
			{Period: "2026-04-03", Value: 1},
		}, report.Buckets)
	})

	t.Run("appointments by week use start time", func(t *testing.T) {
		report, err := svc.Report(ctx, aprilFilter("appointments", "week"))
		require.NoError(t, err)
		assert.Equal(t, []model.AnalyticsBucket{
			{Period: "2026-W14", Value: 2},
			{Period: "2026-W15", Value: 1},
		}, report.Buckets)
	})

	t.Run("distinct staff", func(t *testing.T) {
		report, err := svc.Report(ctx, aprilFilter("staff", "month"))
		require.NoError(t, err)
		assert.Equal(t, []model.AnalyticsBucket{{Period: "2026-04", Value: 2}}, report.Buckets)
	})

	t.Run("revenue skips refunds", func(t *testing.T) {
		report, err := svc.Report(ctx, aprilFilter("revenue", "month"))
		require.NoError(t, err)
		assert.Equal(t, float64(125), report.Total)
	})

	t.Run("revenue for one staff member", func(t *testing.T) {
		filter := aprilFilter("revenue", "day")
		filter.StaffID = staffA
		report, err := svc.Report(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, float64(65), report.Total)
		assert.Equal(t, staffA, report.StaffID)
	})

	t.Run("range is inclusive and bounded", func(t *testing.T) {
		filter := aprilFilter("customers", "day")
		filter.To = time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
		report, err := svc.Report(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, float64(2), report.Total)
	})

	t.Run("unknown metric", func(t *testing.T) {
		_, err := svc.Report(ctx, aprilFilter("bookings", "day"))
		require.ErrorIs(t, err, model.ErrInvalidInput)
	})
}
