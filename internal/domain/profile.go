package domain

import "time"

// UserProfile is the directory entry refreshed on every sign-in.
type UserProfile struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	LastLogin time.Time `json:"lastLogin"`
}

// Identity is what the identity provider asserted about a user.
type Identity struct {
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Subject       string
}
