package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

const defaultSessionTTL = 24 * time.Hour

// Claims binds a bearer token to one chat session.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// JWTConfig configures session token signing.
type JWTConfig struct {
	Secret        string
	Expiry        time.Duration
	Issuer        string
	SigningMethod jwt.SigningMethod
}

// DefaultJWTConfig signs HS256 tokens issued by "fundqa" that last a day.
func DefaultJWTConfig(secret string) *JWTConfig {
	return &JWTConfig{
		Secret:        secret,
		Expiry:        defaultSessionTTL,
		Issuer:        "fundqa",
		SigningMethod: jwt.SigningMethodHS256,
	}
}

// Session is a newly issued chat session.
type Session struct {
	ID        string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JWTManager mints and verifies session tokens.
type JWTManager struct {
	config *JWTConfig
	parser *jwt.Parser
	now    func() time.Time
}

func NewJWTManager(config *JWTConfig) *JWTManager {
	if config.SigningMethod == nil {
		config.SigningMethod = jwt.SigningMethodHS256
	}
	if config.Expiry <= 0 {
		config.Expiry = defaultSessionTTL
	}
	m := &JWTManager{config: config, now: time.Now}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{config.SigningMethod.Alg()}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	return m
}

// NewSession starts a session under a random id.
func (m *JWTManager) NewSession() (*Session, error) {
	id := uuid.NewString()
	token, expires, err := m.GenerateToken(id)
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, Token: token, ExpiresAt: expires}, nil
}

// GenerateToken signs a token for sessionID and returns it with its expiry.
func (m *JWTManager) GenerateToken(sessionID string) (string, time.Time, error) {
	issued := m.now()
	expires := issued.Add(m.config.Expiry)

	signed, err := jwt.NewWithClaims(m.config.SigningMethod, &Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expires.Truncate(time.Second), nil
}

// ValidateToken returns the claims of a token this manager signed.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(m.config.Secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case claims.SessionID == "":
		return nil, ErrInvalidClaims
	}
	return claims, nil
}
