package security

import (
	"context"
	"errors"
	"time"

	"codeduel/internal/platform/config"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var TokenAuth *jwtauth.JWTAuth

func InitJWT() {
	TokenAuth = jwtauth.New("HS256", config.AppConfig.JWTKey, nil)
}

func GenerateToken(userID, role string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(config.AppConfig.JWTExp).Unix(),
		"iat":     time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

// ParseToken validates a raw token string and returns its user claims.
// Used by the duel socket, which receives the token as a query parameter
// instead of an Authorization header.
func ParseToken(tokenString string) (userID, role string, err error) {
	token, err := jwtauth.VerifyToken(TokenAuth, tokenString)
	if err != nil {
		return "", "", err
	}
	claims, err := token.AsMap(context.Background())
	if err != nil {
		return "", "", err
	}
	id, ok := claims["user_id"].(string)
	if !ok {
		return "", "", errors.New("user_id claim is missing or not a string")
	}
	r, ok := claims["role"].(string)
	if !ok {
		return "", "", errors.New("role claim is missing or not a string")
	}
	return id, r, nil
}

func GetUserIDFromClaims(claims map[string]interface{}) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

func GetUserRoleFromClaims(claims map[string]interface{}) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}
