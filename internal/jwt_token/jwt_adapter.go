package jwttoken

import (
	"escrowops/pkg/domain"
	authmw "escrowops/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *Claims) *authmw.JWTClaims {
	role, _ := domain.ParseRole(claims.Role)
	return &authmw.JWTClaims{
		Subject: claims.Subject,
		Role:    role,
		JTI:     claims.ID,
	}
}

// JWTServiceAdapter lets the auth middleware validate tokens without
// importing this package.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
