package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presence-api/internal/models"
)

// AttendanceRepository persists the append-only audit trail. It deliberately
// exposes no update or delete operation: once written, a record is immutable.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Insert appends one attendance record. This is the single controlled write
// path used by the decision pipeline; it bypasses no validation because all
// validation has already resolved by the time it runs.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	query := `INSERT INTO attendance_records (id, student_id, classroom_id, status, reason, latitude, longitude, device_id, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.StudentID, record.ClassroomID, record.Status, record.Reason,
		record.Latitude, record.Longitude, record.DeviceID, record.RecordedAt,
	); err != nil {
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// LastAttemptAt returns the timestamp of the student's most recent recorded
// submission, accepted or rejected, or nil when none exists.
func (r *AttendanceRepository) LastAttemptAt(ctx context.Context, studentID string) (*time.Time, error) {
	var ts time.Time
	query := `SELECT recorded_at FROM attendance_records WHERE student_id = $1 ORDER BY recorded_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &ts, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last attempt lookup: %w", err)
	}
	return &ts, nil
}

// List returns attendance rows joined with display fields, filtered and
// paginated for the dashboard.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordView, int, error) {
	base := `FROM attendance_records ar
JOIN student_profiles s ON s.id = ar.student_id
JOIN classrooms c ON c.id = ar.classroom_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassroomID != "" {
		where = append(where, fmt.Sprintf("ar.classroom_id = $%d", len(args)+1))
		args = append(args, filter.ClassroomID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("ar.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("ar.recorded_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("ar.recorded_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ar.id, ar.student_id, ar.classroom_id, ar.status, ar.reason, ar.latitude, ar.longitude, ar.device_id, ar.recorded_at,
        s.full_name AS student_name, c.name AS classroom_name, c.building
        %s WHERE %s
        ORDER BY ar.recorded_at %s
        LIMIT %d OFFSET %d`, base, whereClause, order, size, offset)

	var rows []models.AttendanceRecordView
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return rows, total, nil
}
