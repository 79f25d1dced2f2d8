package auth

import (
	"github.com/angelmondragon/storefront-backend/internal/users"
)

// SignupRequest is the payload for creating a customer account.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// SignupResponse reports the new account and how long the emailed code stays valid.
type SignupResponse struct {
	User             *users.UserDTO `json:"user"`
	OTPExpiresInSecs int            `json:"otp_expires_in_seconds"`
}

// VerifyOTPRequest confirms the code emailed at signup.
type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,numeric"`
}

// ResendOTPRequest asks for a fresh verification code.
type ResendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse contains the tokens and user produced by a successful login.
type LoginResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *users.UserDTO `json:"user"`
}

// RefreshRequest identifies the session being rotated. AccessID is the jti of
// the (possibly expired) access token presented with the refresh token.
type RefreshRequest struct {
	AccessID     string `json:"-"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshResponse carries the rotated token pair.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse describes the authenticated caller.
type SessionResponse struct {
	User *users.UserDTO `json:"user"`
}
