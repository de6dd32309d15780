package security

import (
	"errors"
	"strings"
	"time"

	"gangkeeper-backend/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeService TokenType = "service"
)

const issuer = "gangkeeper"

// ActorClaims identifies the platform account (or system job) behind a request.
type ActorClaims struct {
	ExternalID string    `json:"external_id"`
	Type       TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the domain actor used for permission checks.
func (c *ActorClaims) Actor() domain.Actor {
	if c.Type == TokenTypeService {
		return domain.SystemActor(strings.TrimPrefix(c.ExternalID, "system:"))
	}
	return domain.UserActor(c.ExternalID)
}

type TokenManager interface {
	GenerateAccessToken(externalID string) (string, error)
	GenerateServiceToken(name string) (string, error)
	ValidateToken(tokenString string) (*ActorClaims, error)
}

type tokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &tokenManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (m *tokenManager) GenerateAccessToken(externalID string) (string, error) {
	return m.sign(externalID, TokenTypeAccess, "api-access", m.ttl)
}

// GenerateServiceToken issues a long-lived token for automation that acts as
// the system, e.g. an operator triggering a job run.
func (m *tokenManager) GenerateServiceToken(name string) (string, error) {
	return m.sign("system:"+name, TokenTypeService, "api-service", 24*30*time.Hour)
}

func (m *tokenManager) sign(subject string, typ TokenType, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		ExternalID: subject,
		Type:       typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) ValidateToken(tokenString string) (*ActorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*ActorClaims); ok && token.Valid {
		if claims.ExternalID == "" {
			claims.ExternalID = claims.Subject
		}
		if claims.ExternalID == "" {
			return nil, ErrInvalidToken
		}
		return claims, nil
	}

	return nil, ErrInvalidToken
}
