package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presence-api/internal/models"
)

// ClassroomRepository handles classroom persistence and secret rotation.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs the repository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// FindByID loads one classroom including its current secret.
func (r *ClassroomRepository) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	var room models.Classroom
	query := `SELECT id, name, building, latitude, longitude, radius_m, secret, created_at, updated_at
FROM classrooms WHERE id = $1`
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// Create inserts a new classroom.
func (r *ClassroomRepository) Create(ctx context.Context, room *models.Classroom) error {
	now := time.Now().UTC()
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	room.CreatedAt = now
	room.UpdatedAt = now
	query := `INSERT INTO classrooms (id, name, building, latitude, longitude, radius_m, secret, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		room.ID, room.Name, room.Building, room.Latitude, room.Longitude, room.RadiusM, room.Secret, room.CreatedAt, room.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert classroom: %w", err)
	}
	return nil
}

// List returns classrooms matching the filter. Secrets stay server-side; the
// model never serialises them.
func (r *ClassroomRepository) List(ctx context.Context, filter models.ClassroomFilter) ([]models.Classroom, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Building != "" {
		where = append(where, fmt.Sprintf("building = $%d", len(args)+1))
		args = append(args, filter.Building)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, name, building, latitude, longitude, radius_m, secret, created_at, updated_at
        FROM classrooms WHERE %s ORDER BY building, name LIMIT %d OFFSET %d`, whereClause, size, offset)

	var rooms []models.Classroom
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classrooms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM classrooms WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classrooms: %w", err)
	}
	return rooms, total, nil
}

// SecretInUse reports whether any classroom other than excludeID already
// holds the given secret. The unique constraint on classrooms.secret is the
// final arbiter; this read exists for descriptive rotation failures.
func (r *ClassroomRepository) SecretInUse(ctx context.Context, secret, excludeID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM classrooms WHERE secret = $1 AND id <> $2`
	if err := r.db.GetContext(ctx, &count, query, secret, excludeID); err != nil {
		return false, fmt.Errorf("secret uniqueness lookup: %w", err)
	}
	return count > 0, nil
}

// RotateSecret replaces the classroom secret and appends the rotation record
// in one transaction. The previous secret is unusable the moment the
// transaction commits; submissions that already read it are not retroactively
// invalidated.
func (r *ClassroomRepository) RotateSecret(ctx context.Context, rotation *models.TokenRotation) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if rotation.ID == "" {
		rotation.ID = uuid.NewString()
	}
	if rotation.RotatedAt.IsZero() {
		rotation.RotatedAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE classrooms SET secret = $1, updated_at = $2 WHERE id = $3 AND secret = $4`,
		rotation.NewSecret, rotation.RotatedAt, rotation.ClassroomID, rotation.PreviousSecret,
	)
	if err != nil {
		return fmt.Errorf("update classroom secret: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update classroom secret: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update classroom secret: classroom %s changed concurrently", rotation.ClassroomID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO token_rotations (id, classroom_id, previous_secret, new_secret, actor_id, reason, rotated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rotation.ID, rotation.ClassroomID, rotation.PreviousSecret, rotation.NewSecret, rotation.ActorID, rotation.Reason, rotation.RotatedAt,
	); err != nil {
		return fmt.Errorf("insert token rotation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

// ListRotations returns the rotation history for a classroom, newest first.
func (r *ClassroomRepository) ListRotations(ctx context.Context, classroomID string) ([]models.TokenRotation, error) {
	var rotations []models.TokenRotation
	query := `SELECT id, classroom_id, previous_secret, new_secret, actor_id, reason, rotated_at
FROM token_rotations WHERE classroom_id = $1 ORDER BY rotated_at DESC`
	if err := r.db.SelectContext(ctx, &rotations, query, classroomID); err != nil {
		return nil, fmt.Errorf("list token rotations: %w", err)
	}
	return rotations, nil
}
