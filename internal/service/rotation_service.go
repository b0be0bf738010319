package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type rotationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
	SecretInUse(ctx context.Context, secret, excludeID string) (bool, error)
	RotateSecret(ctx context.Context, rotation *models.TokenRotation) error
	ListRotations(ctx context.Context, classroomID string) ([]models.TokenRotation, error)
}

// RotationService replaces classroom secrets. Unlike the decision pipeline,
// its failures are hard errors: rotation is an administrative operation, not
// a business outcome to be soft-rejected and logged.
type RotationService struct {
	classrooms rotationRepository
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewRotationService constructs the rotation manager.
func NewRotationService(classrooms rotationRepository, validate *validator.Validate, logger *zap.Logger) *RotationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RotationService{classrooms: classrooms, validator: validate, logger: logger}
}

// RotateSecretRequest is the administrative rotation payload.
type RotateSecretRequest struct {
	NewSecret string  `json:"newSecret" validate:"required"`
	Reason    *string `json:"reason"`
}

// RotationResult confirms a completed rotation.
type RotationResult struct {
	ClassroomID string `json:"classroom_id"`
	RotatedAt   string `json:"rotated_at"`
}

// Rotate atomically replaces the classroom secret and appends the rotation
// record. The previous value stops validating submissions the instant the
// transaction commits.
func (s *RotationService) Rotate(ctx context.Context, actor models.CallerContext, classroomID string, req RotateSecretRequest) (*models.TokenRotation, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrInsufficientPrivilege
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rotation payload")
	}
	if strings.TrimSpace(req.NewSecret) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new secret must not be blank")
	}

	room, err := s.classrooms.FindByID(ctx, classroomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "classroom lookup failed")
	}

	if req.NewSecret == room.Secret {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new secret matches the current secret")
	}

	inUse, err := s.classrooms.SecretInUse(ctx, req.NewSecret, room.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "secret uniqueness check failed")
	}
	if inUse {
		return nil, appErrors.Clone(appErrors.ErrConflict, "secret already assigned to another classroom")
	}

	rotation := &models.TokenRotation{
		ClassroomID:    room.ID,
		PreviousSecret: room.Secret,
		NewSecret:      req.NewSecret,
		ActorID:        actor.IdentityID,
		Reason:         req.Reason,
	}
	if err := s.classrooms.RotateSecret(ctx, rotation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "rotation failed")
	}

	s.logger.Info("classroom secret rotated",
		zap.String("classroom_id", room.ID),
		zap.String("actor_id", actor.IdentityID),
	)
	return rotation, nil
}

// History returns the rotation records for a classroom, newest first.
func (s *RotationService) History(ctx context.Context, actor models.CallerContext, classroomID string) ([]models.TokenRotation, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrInsufficientPrivilege
	}
	if _, err := s.classrooms.FindByID(ctx, classroomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "classroom lookup failed")
	}
	rotations, err := s.classrooms.ListRotations(ctx, classroomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "rotation history lookup failed")
	}
	return rotations, nil
}
