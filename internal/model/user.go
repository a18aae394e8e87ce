package model

import (
	"time"
)

type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	// XtreamURL and XtreamCredentials hold the linked streaming provider
	// account. Credentials are stored AES-GCM encrypted.
	XtreamURL         *string    `db:"xtream_url" json:"-"`
	XtreamCredentials *string    `db:"xtream_credentials" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	LastLoginAt       *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
}

type CreateUserParams struct {
	Email        string
	PasswordHash string
}

type Session struct {
	ID        string    `db:"id" json:"id"`
	TokenHash string    `db:"token_hash" json:"-"`
	UserID    string    `db:"user_id" json:"userId"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateSessionParams struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
}
