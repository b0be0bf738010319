package models

import "time"

// Classroom is the geofenced room a student checks into. The secret is
// unique across all classrooms and mutated only through token rotation.
type Classroom struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Building  string    `db:"building" json:"building"`
	Latitude  float64   `db:"latitude" json:"latitude"`
	Longitude float64   `db:"longitude" json:"longitude"`
	RadiusM   float64   `db:"radius_m" json:"radius_m"`
	Secret    string    `db:"secret" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClassroomFilter captures filtering criteria for listing classrooms.
type ClassroomFilter struct {
	Building string
	Search   string
	Page     int
	PageSize int
}

// TokenRotation records one secret replacement. Rows are append-only.
type TokenRotation struct {
	ID             string    `db:"id" json:"id"`
	ClassroomID    string    `db:"classroom_id" json:"classroom_id"`
	PreviousSecret string    `db:"previous_secret" json:"-"`
	NewSecret      string    `db:"new_secret" json:"-"`
	ActorID        string    `db:"actor_id" json:"actor_id"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	RotatedAt      time.Time `db:"rotated_at" json:"rotated_at"`
}
