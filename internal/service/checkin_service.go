package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/geo"
	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type lastAttemptReader interface {
	LastAttemptAt(ctx context.Context, studentID string) (*time.Time, error)
}

type attendanceWriter interface {
	lastAttemptReader
	Insert(ctx context.Context, record *models.AttendanceRecord) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentProfile, error)
}

type classroomReader interface {
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
}

type submissionLocker interface {
	AcquireSubmissionLock(ctx context.Context, studentID string, ttl time.Duration) (bool, error)
	ReleaseSubmissionLock(ctx context.Context, studentID string)
}

// CheckInService runs the attendance decision pipeline: a fixed, ordered
// list of stages with short-circuit semantics. The first failing stage owns
// the final reason; later stages never run and cannot override it.
type CheckInService struct {
	attendance attendanceWriter
	students   studentReader
	classrooms classroomReader
	locks      submissionLocker
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger

	stages          []stage
	rateLimitWindow time.Duration
	lockTTL         time.Duration
}

// CheckInConfig tunes the pipeline.
type CheckInConfig struct {
	RateLimitWindow time.Duration
	DefaultRadiusM  float64
	LockTTL         time.Duration
}

// NewCheckInService wires the pipeline stages in their fixed order.
func NewCheckInService(
	attendance attendanceWriter,
	students studentReader,
	classrooms classroomReader,
	locks submissionLocker,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg CheckInConfig,
) *CheckInService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = 60 * time.Second
	}
	if cfg.DefaultRadiusM <= 0 {
		cfg.DefaultRadiusM = 50
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	return &CheckInService{
		attendance: attendance,
		students:   students,
		classrooms: classrooms,
		locks:      locks,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		stages: []stage{
			rateLimitStage{attendance: attendance, window: cfg.RateLimitWindow},
			identityStage{},
			deviceBindingStage{students: students},
			secretTokenStage{classrooms: classrooms},
			geofenceStage{defaultRadiusM: cfg.DefaultRadiusM},
		},
		rateLimitWindow: cfg.RateLimitWindow,
		lockTTL:         cfg.LockTTL,
	}
}

// CheckInRequest is the submission payload. Latitude and longitude are
// pointers so an absent field is distinguishable from zero.
type CheckInRequest struct {
	ClassroomID string   `json:"classroomId" validate:"required"`
	Secret      string   `json:"secret" validate:"required"`
	Latitude    *float64 `json:"latitude" validate:"required"`
	Longitude   *float64 `json:"longitude" validate:"required"`
}

// Decision is the structured outcome of one submission. RejectionReason is
// null exactly when status is PRESENT.
type Decision struct {
	Status            models.AttendanceStatus `json:"status"`
	RejectionReason   *models.RejectionReason `json:"rejection_reason"`
	Timestamp         time.Time               `json:"timestamp"`
	RetryAfterSeconds *int64                  `json:"retry_after_seconds,omitempty"`
	DeviceBindPending bool                    `json:"device_bind_pending,omitempty"`
}

// CheckIn evaluates one submission and writes exactly one attendance record
// reflecting whichever stage terminated the pipeline, or full success. Input
// validation is the only gate that fails without a record: malformed
// submissions are hard failures and never reach the store.
func (s *CheckInService) CheckIn(ctx context.Context, caller models.CallerContext, req CheckInRequest) (*Decision, error) {
	sub, err := s.validateInput(caller, req)
	if err != nil {
		return nil, err
	}

	// Serialize same-identity submissions. The lookback alone is racy: two
	// taps in flight together could both read "no recent attempt" before
	// either logs. A held lock means another submission is mid-pipeline, so
	// this one is by definition inside the rate window.
	if s.locks != nil {
		acquired, lockErr := s.locks.AcquireSubmissionLock(ctx, caller.IdentityID, s.lockTTL)
		if lockErr != nil {
			s.logger.Warn("submission lock unavailable, falling back to lookback", zap.Error(lockErr))
		} else if !acquired {
			return s.record(ctx, sub, &rejection{Reason: models.ReasonRateLimitExceeded, RetryAfter: s.lockTTL})
		} else {
			defer s.locks.ReleaseSubmissionLock(ctx, caller.IdentityID)
		}
	}

	for _, st := range s.stages {
		start := time.Now()
		rej, err := st.Evaluate(ctx, sub)
		s.metrics.ObserveStage(st.Name(), time.Since(start))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "decision pipeline aborted")
		}
		if rej != nil {
			return s.record(ctx, sub, rej)
		}
	}
	return s.record(ctx, sub, nil)
}

func (s *CheckInService) validateInput(caller models.CallerContext, req CheckInRequest) (*submission, error) {
	if caller.IdentityID == "" {
		return nil, appErrors.ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "missing required submission fields")
	}
	if strings.TrimSpace(req.Secret) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "secret must not be blank")
	}
	if !geo.ValidLatitude(*req.Latitude) {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "latitude out of range")
	}
	if !geo.ValidLongitude(*req.Longitude) {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "longitude out of range")
	}
	return &submission{
		Caller:      caller,
		ClassroomID: req.ClassroomID,
		Secret:      req.Secret,
		Point:       geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Now:         time.Now().UTC(),
	}, nil
}

// record writes the single audit row and builds the response. No outcome is
// ever returned without its record: a failed insert is a hard failure and
// the caller sees store_unavailable instead of a decision.
func (s *CheckInService) record(ctx context.Context, sub *submission, rej *rejection) (*Decision, error) {
	record := &models.AttendanceRecord{
		StudentID:   sub.Caller.IdentityID,
		ClassroomID: sub.ClassroomID,
		Status:      models.AttendanceStatusPresent,
		Latitude:    sub.Point.Latitude,
		Longitude:   sub.Point.Longitude,
		RecordedAt:  sub.Now,
	}
	if sub.Caller.DeviceID != "" {
		device := sub.Caller.DeviceID
		record.DeviceID = &device
	}
	if rej != nil {
		reason := rej.Reason
		record.Status = models.AttendanceStatusRejected
		record.Reason = &reason
	}

	if err := s.attendance.Insert(ctx, record); err != nil {
		s.logger.Error("attendance record write failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to log attendance outcome")
	}

	decision := &Decision{
		Status:    record.Status,
		Timestamp: record.RecordedAt,
	}
	if rej != nil {
		reason := rej.Reason
		decision.RejectionReason = &reason
		if rej.Reason == models.ReasonRateLimitExceeded && rej.RetryAfter > 0 {
			secs := retryAfterSeconds(rej.RetryAfter)
			decision.RetryAfterSeconds = &secs
		}
	} else {
		decision.DeviceBindPending = sub.BindingNeeded
	}

	s.metrics.ObserveDecision(record.Status, record.Reason)
	s.logger.Info("attendance decision",
		zap.String("student_id", sub.Caller.IdentityID),
		zap.String("classroom_id", sub.ClassroomID),
		zap.String("status", string(record.Status)),
		zap.Any("reason", record.Reason),
		zap.Float64("distance_m", sub.DistanceM),
	)
	return decision, nil
}
