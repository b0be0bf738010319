package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presence-api/internal/models"
)

// StudentRepository reads student profiles owned by the identity service.
// The decision pipeline never writes through it; the only mutation is the
// administrative device reset.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID loads a profile. Callers distinguish sql.ErrNoRows themselves
// because a missing profile is a business rejection, not an error.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	var profile models.StudentProfile
	query := `SELECT id, full_name, email, email_verified_at, bound_device_id, active, created_at, updated_at
FROM student_profiles WHERE id = $1`
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ResetDevice clears the bound device so the student's next submission binds
// a new one. This is the explicit administrative reset; nothing else may
// change an established binding.
func (r *StudentRepository) ResetDevice(ctx context.Context, id string) error {
	query := `UPDATE student_profiles SET bound_device_id = NULL, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset device binding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset device binding: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("reset device binding: profile %s not found", id)
	}
	return nil
}
