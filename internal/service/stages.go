package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/presence-api/internal/geo"
	"github.com/noah-isme/presence-api/internal/models"
)

// submission is the mutable pipeline context for one check-in. Stages read
// the fields earlier stages populated and write the ones they own.
type submission struct {
	Caller      models.CallerContext
	ClassroomID string
	Secret      string
	Point       geo.Point
	Now         time.Time

	Classroom     *models.Classroom
	Student       *models.StudentProfile
	DistanceM     float64
	RetryAfter    time.Duration
	BindingNeeded bool
}

// rejection is a successfully computed non-acceptance outcome. It is not an
// error: the pipeline still logs it and returns HTTP 200.
type rejection struct {
	Reason     models.RejectionReason
	RetryAfter time.Duration
}

// stage is one gate of the decision pipeline. A nil, nil return means pass;
// a non-nil rejection terminates the pipeline with that reason; an error is
// a hard failure that aborts without an audit record.
type stage interface {
	Name() string
	Evaluate(ctx context.Context, sub *submission) (*rejection, error)
}

// rateLimitStage bounds submission frequency per identity via the lookback
// over the audit trail. Every logged attempt counts, rejected ones included,
// so a rejected burst keeps pushing the window forward.
type rateLimitStage struct {
	attendance lastAttemptReader
	window     time.Duration
}

func (s rateLimitStage) Name() string { return "rate_limit" }

func (s rateLimitStage) Evaluate(ctx context.Context, sub *submission) (*rejection, error) {
	last, err := s.attendance.LastAttemptAt(ctx, sub.Caller.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("rate limit lookback: %w", err)
	}
	if last == nil {
		return nil, nil
	}
	elapsed := sub.Now.Sub(*last)
	if elapsed < s.window {
		remaining := s.window - elapsed
		sub.RetryAfter = remaining
		return &rejection{Reason: models.ReasonRateLimitExceeded, RetryAfter: remaining}, nil
	}
	return nil, nil
}

// identityStage trusts the assertion's email-verification claim; the
// identity collaborator already did the verifying.
type identityStage struct{}

func (s identityStage) Name() string { return "identity" }

func (s identityStage) Evaluate(ctx context.Context, sub *submission) (*rejection, error) {
	if !sub.Caller.EmailVerified {
		return &rejection{Reason: models.ReasonEmailNotVerified}, nil
	}
	return nil, nil
}

// deviceBindingStage compares the asserted device against the stored
// binding. An absent device claim fails closed; a null stored binding passes
// and marks the device eligible for binding by the identity collaborator.
type deviceBindingStage struct {
	students studentReader
}

func (s deviceBindingStage) Name() string { return "device_binding" }

func (s deviceBindingStage) Evaluate(ctx context.Context, sub *submission) (*rejection, error) {
	profile, err := s.students.FindByID(ctx, sub.Caller.IdentityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &rejection{Reason: models.ReasonProfileNotFound}, nil
		}
		return nil, fmt.Errorf("profile lookup: %w", err)
	}
	sub.Student = profile

	if sub.Caller.DeviceID == "" {
		return &rejection{Reason: models.ReasonDeviceIDMissing}, nil
	}
	if profile.BoundDeviceID == nil {
		sub.BindingNeeded = true
		return nil, nil
	}
	if *profile.BoundDeviceID != sub.Caller.DeviceID {
		return &rejection{Reason: models.ReasonDeviceMismatch}, nil
	}
	return nil, nil
}

// secretTokenStage matches the submitted secret against the classroom's
// current one. Comparison is exact: case-sensitive, no trimming.
type secretTokenStage struct {
	classrooms classroomReader
}

func (s secretTokenStage) Name() string { return "secret_token" }

func (s secretTokenStage) Evaluate(ctx context.Context, sub *submission) (*rejection, error) {
	room, err := s.classrooms.FindByID(ctx, sub.ClassroomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &rejection{Reason: models.ReasonClassroomNotFound}, nil
		}
		return nil, fmt.Errorf("classroom lookup: %w", err)
	}
	if room.Secret != sub.Secret {
		return &rejection{Reason: models.ReasonInvalidToken}, nil
	}
	sub.Classroom = room
	return nil, nil
}

// geofenceStage computes the ellipsoidal distance to the classroom and
// applies the inclusive boundary.
type geofenceStage struct {
	defaultRadiusM float64
}

func (s geofenceStage) Name() string { return "geofence" }

func (s geofenceStage) Evaluate(ctx context.Context, sub *submission) (*rejection, error) {
	room := sub.Classroom
	radius := room.RadiusM
	if radius <= 0 {
		radius = s.defaultRadiusM
	}
	sub.DistanceM = geo.DistanceMeters(sub.Point, geo.Point{Latitude: room.Latitude, Longitude: room.Longitude})
	if sub.DistanceM > radius {
		return &rejection{Reason: models.ReasonOutsideGeofence}, nil
	}
	return nil, nil
}

func retryAfterSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}
