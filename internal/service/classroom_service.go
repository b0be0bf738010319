package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/geo"
	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type classroomRepository interface {
	classroomReader
	Create(ctx context.Context, room *models.Classroom) error
	List(ctx context.Context, filter models.ClassroomFilter) ([]models.Classroom, int, error)
	SecretInUse(ctx context.Context, secret, excludeID string) (bool, error)
}

// ClassroomService covers the administrative tooling that provisions rooms.
type ClassroomService struct {
	classrooms classroomRepository
	validator  *validator.Validate
	logger     *zap.Logger
	defaultRad float64
}

// NewClassroomService constructs the service.
func NewClassroomService(classrooms classroomRepository, validate *validator.Validate, logger *zap.Logger, defaultRadiusM float64) *ClassroomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultRadiusM <= 0 {
		defaultRadiusM = 50
	}
	return &ClassroomService{classrooms: classrooms, validator: validate, logger: logger, defaultRad: defaultRadiusM}
}

// CreateClassroomRequest is the provisioning payload.
type CreateClassroomRequest struct {
	Name      string   `json:"name" validate:"required"`
	Building  string   `json:"building" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	RadiusM   float64  `json:"radius_m"`
	Secret    string   `json:"secret" validate:"required"`
}

// Create provisions a classroom with a unique initial secret.
func (s *ClassroomService) Create(ctx context.Context, actor models.CallerContext, req CreateClassroomRequest) (*models.Classroom, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrInsufficientPrivilege
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid classroom payload")
	}
	if !geo.ValidLatitude(*req.Latitude) || !geo.ValidLongitude(*req.Longitude) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "coordinates out of range")
	}
	if strings.TrimSpace(req.Secret) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "secret must not be blank")
	}

	inUse, err := s.classrooms.SecretInUse(ctx, req.Secret, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "secret uniqueness check failed")
	}
	if inUse {
		return nil, appErrors.Clone(appErrors.ErrConflict, "secret already assigned to another classroom")
	}

	radius := req.RadiusM
	if radius <= 0 {
		radius = s.defaultRad
	}
	room := &models.Classroom{
		Name:      req.Name,
		Building:  req.Building,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		RadiusM:   radius,
		Secret:    req.Secret,
	}
	if err := s.classrooms.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "classroom create failed")
	}
	s.logger.Info("classroom created", zap.String("classroom_id", room.ID), zap.String("actor_id", actor.IdentityID))
	return room, nil
}

// Get returns one classroom.
func (s *ClassroomService) Get(ctx context.Context, id string) (*models.Classroom, error) {
	room, err := s.classrooms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "classroom lookup failed")
	}
	return room, nil
}

// List returns classrooms with pagination metadata.
func (s *ClassroomService) List(ctx context.Context, filter models.ClassroomFilter) ([]models.Classroom, *models.Pagination, error) {
	rooms, total, err := s.classrooms.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "classroom list failed")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return rooms, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
