package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type mockAttendanceLister struct {
	rows    []models.AttendanceRecordView
	total   int
	err     error
	calls   int
	lastCap models.AttendanceFilter
}

func (m *mockAttendanceLister) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordView, int, error) {
	m.calls++
	m.lastCap = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.rows, m.total, nil
}

type mapCache struct {
	entries map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}}
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func dashboardRows() []models.AttendanceRecordView {
	reason := models.ReasonOutsideGeofence
	return []models.AttendanceRecordView{
		{
			AttendanceRecord: models.AttendanceRecord{
				ID:          "rec-1",
				StudentID:   "student-1",
				ClassroomID: "room-1",
				Status:      models.AttendanceStatusPresent,
				RecordedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			},
			StudentName:   "Dana Whitfield",
			ClassroomName: "Physics Lab",
			Building:      "Science Hall",
		},
		{
			AttendanceRecord: models.AttendanceRecord{
				ID:          "rec-2",
				StudentID:   "student-2",
				ClassroomID: "room-1",
				Status:      models.AttendanceStatusRejected,
				Reason:      &reason,
				RecordedAt:  time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC),
			},
			StudentName:   "Omar Reyes",
			ClassroomName: "Physics Lab",
			Building:      "Science Hall",
		},
	}
}

func TestDashboardListCachesPages(t *testing.T) {
	lister := &mockAttendanceLister{rows: dashboardRows(), total: 2}
	cache := newMapCache()
	svc := NewDashboardService(lister, cache, nil, nil, time.Minute)

	filter := models.AttendanceFilter{ClassroomID: "room-1", Page: 1, PageSize: 50}

	rows, page, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, 1, lister.calls)

	// Second identical query is served from cache.
	rows, _, err = svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, lister.calls)
}

func TestDashboardListWithoutCache(t *testing.T) {
	lister := &mockAttendanceLister{rows: dashboardRows(), total: 2}
	svc := NewDashboardService(lister, nil, nil, nil, time.Minute)

	_, _, err := svc.List(context.Background(), models.AttendanceFilter{})
	require.NoError(t, err)
	_, _, err = svc.List(context.Background(), models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestDashboardExportCSV(t *testing.T) {
	lister := &mockAttendanceLister{rows: dashboardRows(), total: 2}
	svc := NewDashboardService(lister, nil, nil, nil, time.Minute)

	payload, contentType, err := svc.Export(context.Background(), models.AttendanceFilter{}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	body := string(payload)
	assert.True(t, strings.HasPrefix(body, "Recorded At,Student,Classroom,Building,Status,Reason"))
	assert.Contains(t, body, "Dana Whitfield")
	assert.Contains(t, body, "outside_geofence")
}

func TestDashboardExportDefaultsToCSV(t *testing.T) {
	lister := &mockAttendanceLister{rows: dashboardRows(), total: 2}
	svc := NewDashboardService(lister, nil, nil, nil, time.Minute)

	_, contentType, err := svc.Export(context.Background(), models.AttendanceFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Equal(t, 200, lister.lastCap.PageSize)
}

func TestDashboardExportPDF(t *testing.T) {
	lister := &mockAttendanceLister{rows: dashboardRows(), total: 2}
	svc := NewDashboardService(lister, nil, nil, nil, time.Minute)

	payload, contentType, err := svc.Export(context.Background(), models.AttendanceFilter{}, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestDashboardExportUnsupportedFormat(t *testing.T) {
	lister := &mockAttendanceLister{rows: dashboardRows(), total: 2}
	svc := NewDashboardService(lister, nil, nil, nil, time.Minute)

	_, _, err := svc.Export(context.Background(), models.AttendanceFilter{}, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
