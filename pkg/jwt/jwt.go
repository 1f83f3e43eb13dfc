package jwt

import (
	"fmt"
	"taskmate/backend/internal/config"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded token payload the server and sync client agree on.
type Claims struct {
	UserID  uint
	IsReady bool
}

// GenerateToken creates a new JWT for a given user ID. The is_ready flag is
// carried as user metadata so clients can gate onboarding without a fetch.
func GenerateToken(userID uint, isReady bool) (string, error) {
	claims := jwt.MapClaims{
		"sub":      userID,
		"is_ready": isReady,
		"exp":      time.Now().Add(time.Hour * 24 * 7).Unix(), // Token expires in 7 days
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ParseToken validates a token string and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userIDFloat, ok := claims["sub"].(float64)
	if !ok {
		return nil, fmt.Errorf("missing sub claim")
	}

	isReady, _ := claims["is_ready"].(bool)

	return &Claims{UserID: uint(userIDFloat), IsReady: isReady}, nil
}
