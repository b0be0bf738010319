package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type studentRepository interface {
	studentReader
	ResetDevice(ctx context.Context, id string) error
}

// StudentService exposes the administrative device-binding reset. Bindings
// are monotone otherwise: no submission can move an established binding.
type StudentService struct {
	students studentRepository
	logger   *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(students studentRepository, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{students: students, logger: logger}
}

// ResetDevice clears a student's bound device.
func (s *StudentService) ResetDevice(ctx context.Context, actor models.CallerContext, studentID string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.ErrInsufficientPrivilege
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "profile lookup failed")
	}
	if err := s.students.ResetDevice(ctx, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "device reset failed")
	}
	s.logger.Info("device binding reset",
		zap.String("student_id", studentID),
		zap.String("actor_id", actor.IdentityID),
	)
	return nil
}
