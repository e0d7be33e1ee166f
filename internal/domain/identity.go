// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 64
)

var (
	ErrUserIDEmpty      = errors.New("user id empty")
	ErrUserIDTooLong    = errors.New("user id too long")
	ErrUnknownRole      = errors.New("unknown role")
	ErrDisplayNameEmpty = errors.New("display name empty")
)

type (
	UserID       string
	ConnectionID string
)

// Role is the capacity in which a user participates in a session.
type Role string

const (
	RoleClient    Role = "client"
	RoleTherapist Role = "therapist"
	RoleAdmin     Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleClient, RoleTherapist, RoleAdmin:
		return Role(s), nil
	default:
		return "", ErrUnknownRole
	}
}

// Identity is attached to a connection once at authentication time and is
// immutable for the life of the connection.
type Identity struct {
	UserID      UserID `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

func NewIdentity(id UserID, displayName string, role Role) (Identity, error) {
	if id == "" {
		return Identity{}, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return Identity{}, ErrUserIDTooLong
	}
	if displayName == "" {
		return Identity{}, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		displayName = displayName[:MaxDisplayNameLen]
	}
	if _, err := ParseRole(string(role)); err != nil {
		return Identity{}, err
	}
	return Identity{UserID: id, DisplayName: displayName, Role: role}, nil
}

// UserProfile is a directory record for an authenticated principal.
type UserProfile struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}
