package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is an account allowed to upload and curate albums.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// SafeUser removes sensitive fields for response payloads.
func (u User) SafeUser() User {
	u.PasswordHash = ""
	return u
}

// AccessToken is a signed bearer token with its expiry.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}
