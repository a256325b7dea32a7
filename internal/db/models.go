package db

import (
	"time"
)

/* User represents an account created through signup */
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize password hash
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

/* RateLimitWindow is one persisted signup rate-limit counter */
type RateLimitWindow struct {
	Identifier  string    `json:"identifier"`
	LimitType   string    `json:"limit_type"`
	Count       int64     `json:"count"`
	WindowStart time.Time `json:"window_start"`
}
