package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
// Identifier accepts either the UNI or the registered email address.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
	IP         string `json:"-"`
	UserAgent  string `json:"-"`
}

// RegisterRequest creates a new account. Students receive an empty
// profile alongside the user row.
type RegisterRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	UNI      string   `json:"uni" validate:"required,min=6,max=7"`
	Password string   `json:"password" validate:"required,min=8"`
	Role     UserRole `json:"role"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	UNI              string   `json:"uni"`
	Role             UserRole `json:"role"`
	StudentProfileID *string  `json:"student_profile_id,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID           string   `json:"user_id"`
	Role             UserRole `json:"role"`
	Email            string   `json:"email"`
	UNI              string   `json:"uni"`
	StudentProfileID *string  `json:"student_profile_id,omitempty"`
	jwt.RegisteredClaims
}
