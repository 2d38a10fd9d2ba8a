package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess TokenType = "access"
)

// Claims are the only supported JWT claims shape for this service.
// Tokens identify an API client, not an end user; authorization is by role (internal/rbac).
type Claims struct {
	jwt.RegisteredClaims

	ClientID  string    `json:"client_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
