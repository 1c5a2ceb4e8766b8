package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles accepted on admin bearer tokens.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleReviewer UserRole = "REVIEWER"
)

// JWTClaims represents the JWT payload for admin access tokens.
// The subject identifies the operator the token was minted for.
type JWTClaims struct {
	Role UserRole `json:"role"`
	jwt.RegisteredClaims
}
