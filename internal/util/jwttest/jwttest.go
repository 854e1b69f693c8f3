// Package jwttest 为测试签发 token。正式 token 由外部认证服务签发，本服务只做校验
package jwttest

import (
	"time"

	"exam_review_backend/internal/model"
	"exam_review_backend/internal/util"

	"github.com/golang-jwt/jwt/v5"
)

// Token 签发 HS256 token，expiration 后过期
func Token(userID uint, role model.UserRole, secret string, expiration time.Duration) (string, error) {
	now := time.Now()
	return Sign(&util.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}, secret)
}

func Sign(claims *util.Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
