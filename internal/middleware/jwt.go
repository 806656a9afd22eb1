package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates a bearer token failed verification.
var ErrInvalidToken = errors.New("invalid token")

const bearerPrefix = "Bearer "

// bearerToken extracts the token from an Authorization header value.
func bearerToken(authorization string) (string, bool) {
	if len(authorization) < len(bearerPrefix) || !strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(authorization[len(bearerPrefix):])
	return token, token != ""
}

// ParseBearerToken verifies an HMAC-signed JWT and maps its claims to an identity.
func ParseBearerToken(secret, tokenString string) (Identity, error) {
	if secret == "" {
		return Identity{}, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	userID := extractUserIDFromClaims(claims)
	if userID == "" {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{
		UserID: userID,
		Role:   extractUserRoleFromClaims(claims),
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = strings.TrimSpace(email)
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = strings.TrimSpace(name)
	}
	return identity, nil
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "user_id", "id"} {
		if value, ok := claims[key]; ok {
			if normalized := normalizeUserID(value); normalized != "" {
				return normalized
			}
		}
	}
	return ""
}

func normalizeUserID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return ""
		}
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"role", "roles"} {
		if value, ok := claims[key]; ok {
			if role := normalizeRole(value); role != "" {
				return role
			}
		}
	}
	return ""
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				if role := strings.TrimSpace(str); role != "" {
					return role
				}
			}
		}
	}
	return ""
}
