package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the analyst roles known to the registry.
type UserRole string

const (
	RoleAdmin          UserRole = "ADMIN"
	RoleBiostatistician UserRole = "BIOSTATISTICIAN"
	RoleProgrammer     UserRole = "PROGRAMMER"
	RoleReviewer       UserRole = "REVIEWER"
)

// User represents an application user stored in the users table.
// Authentication lives outside this service; users exist here so
// tracker assignments, comments and audit actors have something to
// reference.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// JWTClaims is the access-token payload minted by the external auth
// service. This API only decodes it to attribute mutations to an actor.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// ActorID returns the claim's user id, or nil for anonymous callers.
func (c *JWTClaims) ActorID() *string {
	if c == nil || c.UserID == "" {
		return nil
	}
	id := c.UserID
	return &id
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
