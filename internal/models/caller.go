package models

import "github.com/golang-jwt/jwt/v5"

// CallerRole represents the roles recognised by the RBAC layer.
type CallerRole string

const (
	RoleAdmin   CallerRole = "ADMIN"
	RoleStaff   CallerRole = "STAFF"
	RoleStudent CallerRole = "STUDENT"
)

// AssertionClaims is the payload of the signed identity assertion. The
// assertion is issued by the external identity service; this API only
// verifies it.
type AssertionClaims struct {
	DeviceID      string     `json:"deviceId,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	Role          CallerRole `json:"role"`
	jwt.RegisteredClaims
}

// CallerContext carries the verified assertion fields through the decision
// pipeline. Every field originates from untrusted input and is validated once
// at the transport boundary, never read from ambient state.
type CallerContext struct {
	IdentityID    string
	DeviceID      string
	EmailVerified bool
	Role          CallerRole
}
