package models

import "time"

// AttendanceStatus is the final outcome of one submission.
type AttendanceStatus string

const (
	AttendanceStatusPresent  AttendanceStatus = "PRESENT"
	AttendanceStatusRejected AttendanceStatus = "REJECTED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusRejected
}

// RejectionReason identifies which pipeline stage produced a non-acceptance
// outcome. Exactly one stage owns each reason.
type RejectionReason string

const (
	ReasonRateLimitExceeded RejectionReason = "rate_limit_exceeded"
	ReasonEmailNotVerified  RejectionReason = "email_not_verified"
	ReasonProfileNotFound   RejectionReason = "profile_not_found"
	ReasonDeviceIDMissing   RejectionReason = "device_id_missing"
	ReasonDeviceMismatch    RejectionReason = "device_mismatch"
	ReasonClassroomNotFound RejectionReason = "classroom_not_found"
	ReasonInvalidToken      RejectionReason = "invalid_token"
	ReasonOutsideGeofence   RejectionReason = "outside_geofence"
)

// AttendanceRecord is the immutable audit row written once per submission,
// accepted or rejected. Reason is non-null iff status is REJECTED.
type AttendanceRecord struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	ClassroomID string           `db:"classroom_id" json:"classroom_id"`
	Status      AttendanceStatus `db:"status" json:"status"`
	Reason      *RejectionReason `db:"reason" json:"reason,omitempty"`
	Latitude    float64          `db:"latitude" json:"latitude"`
	Longitude   float64          `db:"longitude" json:"longitude"`
	DeviceID    *string          `db:"device_id" json:"device_id,omitempty"`
	RecordedAt  time.Time        `db:"recorded_at" json:"recorded_at"`
}

// AttendanceRecordView extends the record with display fields for the
// dashboard query surface.
type AttendanceRecordView struct {
	AttendanceRecord
	StudentName   string `db:"student_name" json:"student_name"`
	ClassroomName string `db:"classroom_name" json:"classroom_name"`
	Building      string `db:"building" json:"building"`
}

// AttendanceFilter defines dashboard query filters.
type AttendanceFilter struct {
	ClassroomID string
	StudentID   string
	Status      *AttendanceStatus
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PageSize    int
	SortOrder   string
}
