package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates roles carried in access tokens. Tokens are
// issued by the surrounding identity service; this API only validates.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleManager  UserRole = "MANAGER"
	RoleEmployee UserRole = "EMPLOYEE"
)

// JWTClaims are the validated claims attached to a request.
type JWTClaims struct {
	UserID string   `json:"sub"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts claims into an explicit audit actor.
func (c *JWTClaims) Actor() Actor {
	return Actor{Email: c.Email, Name: c.Name, Role: string(c.Role)}
}
