package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/geodesic"

	"github.com/noah-isme/presence-api/internal/geo"
	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type mockAttendanceRepo struct {
	last      *time.Time
	lastErr   error
	inserted  []*models.AttendanceRecord
	insertErr error
}

func (m *mockAttendanceRepo) LastAttemptAt(ctx context.Context, studentID string) (*time.Time, error) {
	if m.lastErr != nil {
		return nil, m.lastErr
	}
	return m.last, nil
}

func (m *mockAttendanceRepo) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, record)
	return nil
}

type mockStudentReader struct {
	profile *models.StudentProfile
	err     error
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.profile, nil
}

type mockClassroomReader struct {
	room *models.Classroom
	err  error
}

func (m *mockClassroomReader) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.room, nil
}

type mockLocker struct {
	acquired   bool
	acquireErr error
	released   bool
}

func (m *mockLocker) AcquireSubmissionLock(ctx context.Context, studentID string, ttl time.Duration) (bool, error) {
	if m.acquireErr != nil {
		return false, m.acquireErr
	}
	return m.acquired, nil
}

func (m *mockLocker) ReleaseSubmissionLock(ctx context.Context, studentID string) {
	m.released = true
}

const (
	roomLat = 37.7749
	roomLon = -122.4194
)

func boundDevice(id string) *string { return &id }

func fixtureStudent() *models.StudentProfile {
	verified := time.Now().Add(-24 * time.Hour)
	return &models.StudentProfile{
		ID:              "student-1",
		FullName:        "Dana Whitfield",
		Email:           "dana@example.edu",
		EmailVerifiedAt: &verified,
		BoundDeviceID:   boundDevice("device-1"),
		Active:          true,
	}
}

func fixtureClassroom() *models.Classroom {
	return &models.Classroom{
		ID:        "room-1",
		Name:      "Physics Lab",
		Building:  "Science Hall",
		Latitude:  roomLat,
		Longitude: roomLon,
		RadiusM:   50,
		Secret:    "s3cret-room-1",
	}
}

func fixtureCaller() models.CallerContext {
	return models.CallerContext{
		IdentityID:    "student-1",
		DeviceID:      "device-1",
		EmailVerified: true,
		Role:          models.RoleStudent,
	}
}

func fixtureRequest() CheckInRequest {
	lat, lon := roomLat, roomLon
	return CheckInRequest{
		ClassroomID: "room-1",
		Secret:      "s3cret-room-1",
		Latitude:    &lat,
		Longitude:   &lon,
	}
}

func newTestService(att *mockAttendanceRepo, students *mockStudentReader, rooms *mockClassroomReader, locks *mockLocker) *CheckInService {
	var locker submissionLocker
	if locks != nil {
		locker = locks
	}
	return NewCheckInService(att, students, rooms, locker, nil, nil, nil, CheckInConfig{
		RateLimitWindow: 60 * time.Second,
		DefaultRadiusM:  50,
		LockTTL:         5 * time.Second,
	})
}

func TestCheckInPresentAtClassroomPoint(t *testing.T) {
	att := &mockAttendanceRepo{}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, decision.Status)
	assert.Nil(t, decision.RejectionReason)
	assert.Nil(t, decision.RetryAfterSeconds)
	assert.False(t, decision.Timestamp.IsZero())

	require.Len(t, att.inserted, 1)
	record := att.inserted[0]
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	assert.Nil(t, record.Reason)
	assert.Equal(t, "student-1", record.StudentID)
	assert.Equal(t, "room-1", record.ClassroomID)
}

func TestCheckInRateLimited(t *testing.T) {
	last := time.Now().UTC().Add(-10 * time.Second)
	att := &mockAttendanceRepo{last: &last}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusRejected, decision.Status)
	require.NotNil(t, decision.RejectionReason)
	assert.Equal(t, models.ReasonRateLimitExceeded, *decision.RejectionReason)
	require.NotNil(t, decision.RetryAfterSeconds)
	assert.InDelta(t, 50, *decision.RetryAfterSeconds, 2)

	// Rejected attempts are logged too.
	require.Len(t, att.inserted, 1)
	require.NotNil(t, att.inserted[0].Reason)
	assert.Equal(t, models.ReasonRateLimitExceeded, *att.inserted[0].Reason)
}

func TestCheckInFirstAttemptNeverThrottled(t *testing.T) {
	att := &mockAttendanceRepo{last: nil}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, decision.Status)
}

func TestCheckInEmailNotVerified(t *testing.T) {
	att := &mockAttendanceRepo{}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	caller := fixtureCaller()
	caller.EmailVerified = false
	decision, err := svc.CheckIn(context.Background(), caller, fixtureRequest())
	require.NoError(t, err)
	require.NotNil(t, decision.RejectionReason)
	assert.Equal(t, models.ReasonEmailNotVerified, *decision.RejectionReason)
}

func TestCheckInProfileNotFound(t *testing.T) {
	att := &mockAttendanceRepo{}
	svc := newTestService(att, &mockStudentReader{err: sql.ErrNoRows}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.NoError(t, err)
	require.NotNil(t, decision.RejectionReason)
	assert.Equal(t, models.ReasonProfileNotFound, *decision.RejectionReason)
}

func TestCheckInDeviceIDMissingFailsClosed(t *testing.T) {
	att := &mockAttendanceRepo{}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	caller := fixtureCaller()
	caller.DeviceID = ""
	decision, err := svc.CheckIn(context.Background(), caller, fixtureRequest())
	require.NoError(t, err)
	require.NotNil(t, decision.RejectionReason)
	assert.Equal(t, models.ReasonDeviceIDMissing, *decision.RejectionReason)
}

func TestCheckInDeviceMismatchLeavesBindingAlone(t *testing.T) {
	att := &mockAttendanceRepo{}
	student := fixtureStudent()
	svc := newTestService(att, &mockStudentReader{profile: student}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	caller := fixtureCaller()
	caller.DeviceID = "device-stolen"
	decision, err := svc.CheckIn(context.Background(), caller, fixtureRequest())
	require.NoError(t, err)
	require.NotNil(t, decision.RejectionReason)
	assert.Equal(t, models.ReasonDeviceMismatch, *decision.RejectionReason)

	// The stored binding is untouched by the attempt.
	require.NotNil(t, student.BoundDeviceID)
	assert.Equal(t, "device-1", *student.BoundDeviceID)
}

func TestCheckInUnboundDevicePassesAndFlagsBinding(t *testing.T) {
	att := &mockAttendanceRepo{}
	student := fixtureStudent()
	student.BoundDeviceID = nil
	svc := newTestService(att, &mockStudentReader{profile: student}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, decision.Status)
	assert.True(t, decision.DeviceBindPending)
}

func TestCheckInClassroomNotFound(t *testing.T) {
	att := &mockAttendanceRepo{}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{err: sql.ErrNoRows}, nil)

	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.NoError(t, err)
	require.NotNil(t, decision.RejectionReason)
	assert.Equal(t, models.ReasonClassroomNotFound, *decision.RejectionReason)
}

func TestCheckInInvalidTokenExactMatch(t *testing.T) {
	variants := []string{
		"S3CRET-ROOM-1",    // case variant
		" s3cret-room-1",   // leading whitespace
		"s3cret-room-1 ",   // trailing whitespace
		"s3cret-room-2",    // different value
		"\ts3cret-room-1",  // tab padded
	}
	for _, secret := range variants {
		att := &mockAttendanceRepo{}
		svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

		req := fixtureRequest()
		req.Secret = secret
		decision, err := svc.CheckIn(context.Background(), fixtureCaller(), req)
		require.NoError(t, err, "secret %q", secret)
		require.NotNil(t, decision.RejectionReason, "secret %q", secret)
		assert.Equal(t, models.ReasonInvalidToken, *decision.RejectionReason, "secret %q", secret)
	}
}

// pointAtBearing solves the direct geodesic problem: the point reached from
// the classroom after travelling meters along the given bearing.
func pointAtBearing(bearing, meters float64) (float64, float64) {
	var lat, lon float64
	geodesic.WGS84.Direct(roomLat, roomLon, bearing, meters, &lat, &lon, nil)
	return lat, lon
}

func TestCheckInGeofenceBoundaryAllBearings(t *testing.T) {
	bearings := map[string]float64{
		"north":    0,
		"east":     90,
		"south":    180,
		"west":     270,
		"diagonal": 45,
	}

	for name, bearing := range bearings {
		// Just inside the boundary passes.
		lat, lon := pointAtBearing(bearing, 49.5)
		att := &mockAttendanceRepo{}
		svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)
		req := fixtureRequest()
		req.Latitude, req.Longitude = &lat, &lon
		decision, err := svc.CheckIn(context.Background(), fixtureCaller(), req)
		require.NoError(t, err, name)
		assert.Equal(t, models.AttendanceStatusPresent, decision.Status, name)

		// Just outside is rejected.
		lat2, lon2 := pointAtBearing(bearing, 50.5)
		att2 := &mockAttendanceRepo{}
		svc2 := newTestService(att2, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)
		req2 := fixtureRequest()
		req2.Latitude, req2.Longitude = &lat2, &lon2
		decision2, err := svc2.CheckIn(context.Background(), fixtureCaller(), req2)
		require.NoError(t, err, name)
		require.NotNil(t, decision2.RejectionReason, name)
		assert.Equal(t, models.ReasonOutsideGeofence, *decision2.RejectionReason, name)
	}
}

func TestCheckInGeofenceBoundaryInclusive(t *testing.T) {
	// Radius set to the measured distance itself: distance == radius must
	// pass, the boundary is inclusive.
	lat, lon := pointAtBearing(0, 50)
	d := geo.DistanceMeters(geo.Point{Latitude: roomLat, Longitude: roomLon}, geo.Point{Latitude: lat, Longitude: lon})

	room := fixtureClassroom()
	room.RadiusM = d
	att := &mockAttendanceRepo{}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: room}, nil)
	req := fixtureRequest()
	req.Latitude, req.Longitude = &lat, &lon

	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), req)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, decision.Status)

	// A hair past the boundary is rejected.
	room2 := fixtureClassroom()
	room2.RadiusM = d - 0.05
	svc2 := newTestService(&mockAttendanceRepo{}, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: room2}, nil)
	decision2, err := svc2.CheckIn(context.Background(), fixtureCaller(), req)
	require.NoError(t, err)
	require.NotNil(t, decision2.RejectionReason)
	assert.Equal(t, models.ReasonOutsideGeofence, *decision2.RejectionReason)
}

func TestCheckInHundredMetersNorthRejected(t *testing.T) {
	att := &mockAttendanceRepo{}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	lat, lon := 37.7758, -122.4194
	req := fixtureRequest()
	req.Latitude, req.Longitude = &lat, &lon
	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), req)
	require.NoError(t, err)
	require.NotNil(t, decision.RejectionReason)
	assert.Equal(t, models.ReasonOutsideGeofence, *decision.RejectionReason)
}

func TestCheckInFirstFailingStageOwnsReason(t *testing.T) {
	// Unverified email, mismatched device, wrong secret, out of range — all
	// at once. The identity stage runs first among them and owns the reason.
	att := &mockAttendanceRepo{}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	caller := fixtureCaller()
	caller.EmailVerified = false
	caller.DeviceID = "device-wrong"
	lat, lon := 0.0, 0.0
	req := fixtureRequest()
	req.Secret = "wrong"
	req.Latitude, req.Longitude = &lat, &lon

	decision, err := svc.CheckIn(context.Background(), caller, req)
	require.NoError(t, err)
	require.NotNil(t, decision.RejectionReason)
	assert.Equal(t, models.ReasonEmailNotVerified, *decision.RejectionReason)

	// Exactly one record, reflecting that reason.
	require.Len(t, att.inserted, 1)
	require.NotNil(t, att.inserted[0].Reason)
	assert.Equal(t, models.ReasonEmailNotVerified, *att.inserted[0].Reason)
}

func TestCheckInInvalidInputIsHardFailure(t *testing.T) {
	cases := map[string]func(*CheckInRequest){
		"missing classroom": func(r *CheckInRequest) { r.ClassroomID = "" },
		"blank secret":      func(r *CheckInRequest) { r.Secret = "   " },
		"missing latitude":  func(r *CheckInRequest) { r.Latitude = nil },
		"latitude range":    func(r *CheckInRequest) { v := 90.5; r.Latitude = &v },
		"longitude range":   func(r *CheckInRequest) { v := -180.5; r.Longitude = &v },
	}

	for name, mutate := range cases {
		att := &mockAttendanceRepo{}
		svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

		req := fixtureRequest()
		mutate(&req)
		_, err := svc.CheckIn(context.Background(), fixtureCaller(), req)
		require.Error(t, err, name)
		assert.Equal(t, appErrors.ErrInvalidInput.Code, appErrors.FromError(err).Code, name)

		// Hard failures never reach the audit trail.
		assert.Empty(t, att.inserted, name)
	}
}

func TestCheckInStoreFailureIsHardFailure(t *testing.T) {
	att := &mockAttendanceRepo{lastErr: errors.New("connection refused")}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	_, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErrors.FromError(err).Code)
	assert.Empty(t, att.inserted)
}

func TestCheckInLoggerFailureReturnsNoDecision(t *testing.T) {
	att := &mockAttendanceRepo{insertErr: errors.New("disk full")}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.Error(t, err)
	assert.Nil(t, decision)
}

func TestCheckInLockContentionRejectsAsRateLimited(t *testing.T) {
	att := &mockAttendanceRepo{}
	locks := &mockLocker{acquired: false}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, locks)

	decision, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.NoError(t, err)
	require.NotNil(t, decision.RejectionReason)
	assert.Equal(t, models.ReasonRateLimitExceeded, *decision.RejectionReason)
	require.Len(t, att.inserted, 1)
}

func TestCheckInLockReleasedAfterDecision(t *testing.T) {
	att := &mockAttendanceRepo{}
	locks := &mockLocker{acquired: true}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, locks)

	_, err := svc.CheckIn(context.Background(), fixtureCaller(), fixtureRequest())
	require.NoError(t, err)
	assert.True(t, locks.released)
}

func TestCheckInUnauthenticatedCaller(t *testing.T) {
	att := &mockAttendanceRepo{}
	svc := newTestService(att, &mockStudentReader{profile: fixtureStudent()}, &mockClassroomReader{room: fixtureClassroom()}, nil)

	_, err := svc.CheckIn(context.Background(), models.CallerContext{}, fixtureRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthenticated.Code, appErrors.FromError(err).Code)
	assert.Empty(t, att.inserted)
}
