// Package auth extracts the pre-authenticated identity riding on a
// collaboration socket upgrade. Token issuance lives in the user service;
// this package only verifies and projects the claims.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken  = errors.New("missing token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID string
	Name   string
	Color  string
}

var parseJWT = func(tokenStr string, keyFunc jwt.Keyfunc) (*jwt.Token, error) {
	return jwt.Parse(tokenStr, keyFunc)
}

// FromRequest verifies the identity token on an upgrade request. Browser
// clients pass it as the "token" query parameter since websocket handshakes
// cannot set headers; a bearer Authorization header works too.
func FromRequest(r *http.Request, secret []byte) (Identity, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		authz := r.Header.Get("Authorization")
		if strings.HasPrefix(authz, "Bearer ") {
			raw = strings.TrimPrefix(authz, "Bearer ")
		}
	}
	if raw == "" {
		return Identity{}, ErrMissingToken
	}

	token, err := parseJWT(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidClaims
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		// Older tokens carry the id under userId instead of sub.
		userID, _ = claims["userId"].(string)
	}
	if userID == "" {
		return Identity{}, ErrInvalidClaims
	}
	name, _ := claims["name"].(string)
	color, _ := claims["color"].(string)
	return Identity{UserID: userID, Name: name, Color: color}, nil
}

// Token mints an identity token; used by tests and local tooling.
func Token(id Identity, secret []byte, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   id.UserID,
		"name":  id.Name,
		"color": id.Color,
		"exp":   time.Now().Add(ttl).Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
