package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// adminClaims mirrors the teacher's auth/token.go Claims shape, trimmed
// to the one operator role this advisor's admin surface needs.
type adminClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// adminAuth gates the approval-queue HTTP surface with a bcrypt login
// check against the configured admin password hash and short-lived
// HS256 JWTs, the same shape as the teacher's auth package.
type adminAuth struct {
	email        string
	passwordHash string
	secret       []byte
	expiry       time.Duration
}

func newAdminAuth(email, passwordHash, secret string, expiry time.Duration) *adminAuth {
	if expiry <= 0 {
		expiry = 8 * time.Hour
	}
	return &adminAuth{email: email, passwordHash: passwordHash, secret: []byte(secret), expiry: expiry}
}

func (a *adminAuth) login(email, password string) (string, error) {
	if email != a.email {
		return "", errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	claims := &adminClaims{
		Email: email,
		Role:  "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "indexpilot",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *adminAuth) validate(tokenString string) (*adminClaims, error) {
	claims := &adminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

// requireAdmin wraps handler, rejecting requests without a valid
// "Bearer <token>" Authorization header.
func (a *adminAuth) requireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := a.validate(parts[1]); err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}
