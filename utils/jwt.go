package utils

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret []byte
	jwtMu     sync.RWMutex
)

// InitJWT sets the signing secret. There is no built-in fallback: main refuses
// to start without JWT_SECRET.
func InitJWT(secret string) error {
	if secret == "" {
		return errors.New("JWT secret must not be empty")
	}
	jwtMu.Lock()
	jwtSecret = []byte(secret)
	jwtMu.Unlock()
	return nil
}

func secretKey() []byte {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	return jwtSecret
}

// CustomClaims binds a token to a user, a theater and a role.
type CustomClaims struct {
	UserID    uint   `json:"user_id"`
	TheaterID uint   `json:"theater_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(userID, theaterID uint, role string) (string, error) {
	if len(secretKey()) == 0 {
		return "", errors.New("JWT secret not initialized")
	}

	claims := &CustomClaims{
		UserID:    userID,
		TheaterID: theaterID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "ConcessionsApp",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey())
}

func ParseToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey(), nil
	})
	if err != nil {
		return nil, WrapAppError(KindAuth, "invalid or expired token", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, NewAppError(KindAuth, "invalid token claims")
	}
	return claims, nil
}
