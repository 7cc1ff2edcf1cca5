package auth

import "time"

// OperatorClaims is what an operator token asserts.
type OperatorClaims struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
}

// Roles
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// TokenResponse is returned from a successful login.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"` // Access token expiry in seconds
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"` // Always "Bearer"
}

// LoginRequest represents an operator login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common auth errors
var (
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "invalid username or password"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden          = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
	ErrNotConfigured      = AuthError{Code: "AUTH_NOT_CONFIGURED", Message: "operator login is not configured"}
)
