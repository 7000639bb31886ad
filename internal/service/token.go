package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forumd-dev/forumd/internal/logger"
)

// TokenService issues and verifies the session tokens handed out on a
// successful login. Commands may present a token instead of the password.
type TokenService interface {
	NewToken(username string) (string, error)
	Verify(tokenStr string) (string, error)
}

type Jwt struct {
	secretKey []byte
	ttl       time.Duration
}

// NewJwt builds the token service. An empty secret gets a random per-process
// key: tokens then survive only as long as the server, which is exactly the
// session lifetime.
func NewJwt(secretKey string, ttl time.Duration) *Jwt {
	key := []byte(secretKey)
	if len(key) == 0 {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			panic(fmt.Sprintf("can't generate session key: %v", err))
		}
		key = []byte(hex.EncodeToString(raw))
	}
	return &Jwt{secretKey: key, ttl: ttl}
}

func (j *Jwt) NewToken(username string) (string, error) {
	claims := jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(j.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		logger.Log.Error("failed to sign session token", "error", err)
		return "", fmt.Errorf("can't create token")
	}
	return tokenString, nil
}

// Verify checks the signature and expiry and returns the username the token
// was issued to.
func (j *Jwt) Verify(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid session token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid session token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("session token has no subject")
	}
	return sub, nil
}
