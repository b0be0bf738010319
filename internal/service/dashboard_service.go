package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/export"
)

type attendanceLister interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordView, int, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardService is the read-only attendance query surface. It only ever
// reads the audit trail; completeness and immutability of what it reads are
// the decision pipeline's guarantees.
type DashboardService struct {
	attendance attendanceLister
	cache      dashboardCache
	metrics    *MetricsService
	logger     *zap.Logger
	cacheTTL   time.Duration

	csv *export.CSVExporter
	pdf *export.PDFExporter
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(attendance attendanceLister, cache dashboardCache, metrics *MetricsService, logger *zap.Logger, cacheTTL time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DashboardService{
		attendance: attendance,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		cacheTTL:   cacheTTL,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
	}
}

type cachedAttendancePage struct {
	Rows  []models.AttendanceRecordView `json:"rows"`
	Total int                           `json:"total"`
}

// List returns filtered attendance rows with display fields, cached briefly
// since the dashboard polls.
func (s *DashboardService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordView, *models.Pagination, error) {
	key := cacheKeyFor(filter)

	var cached cachedAttendancePage
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached.Rows, paginationFor(filter, cached.Total), nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	rows, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "attendance query failed")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedAttendancePage{Rows: rows, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("attendance cache write failed", zap.Error(err))
		}
	}
	return rows, paginationFor(filter, total), nil
}

// Export renders the filtered records as CSV or PDF.
func (s *DashboardService) Export(ctx context.Context, filter models.AttendanceFilter, format string) ([]byte, string, error) {
	filter.Page = 1
	filter.PageSize = 200
	rows, _, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "attendance query failed")
	}

	data := export.Dataset{
		Headers: []string{"Recorded At", "Student", "Classroom", "Building", "Status", "Reason"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		reason := ""
		if row.Reason != nil {
			reason = string(*row.Reason)
		}
		data.Rows = append(data.Rows, map[string]string{
			"Recorded At": row.RecordedAt.UTC().Format(time.RFC3339),
			"Student":     row.StudentName,
			"Classroom":   row.ClassroomName,
			"Building":    row.Building,
			"Status":      string(row.Status),
			"Reason":      reason,
		})
	}

	switch format {
	case "pdf":
		payload, err := s.pdf.Render(data, "Attendance Log")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "pdf export failed")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := s.csv.Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "csv export failed")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func cacheKeyFor(filter models.AttendanceFilter) string {
	status := ""
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	from, to := "", ""
	if filter.DateFrom != nil {
		from = strconv.FormatInt(filter.DateFrom.Unix(), 10)
	}
	if filter.DateTo != nil {
		to = strconv.FormatInt(filter.DateTo.Unix(), 10)
	}
	return fmt.Sprintf("presence:dashboard:%s:%s:%s:%s:%s:%d:%d:%s",
		filter.ClassroomID, filter.StudentID, status, from, to, filter.Page, filter.PageSize, filter.SortOrder)
}

func paginationFor(filter models.AttendanceFilter, total int) *models.Pagination {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
