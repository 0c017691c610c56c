// Package auth issues and verifies the signed tokens used by the management
// API and by websocket connections.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imyashkale/mcphost/internal/models"
)

const (
	// PurposeConnection marks tokens that may only open a session
	PurposeConnection = "mcp-connection"

	DefaultManagementTTL = 24 * time.Hour
	DefaultConnectionTTL = time.Hour

	issuer = "mcphost"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrWrongPurpose = errors.New("token issued for another purpose")
)

// ManagementClaims identify a tenant calling the management API
type ManagementClaims struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
	Purpose  string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// ConnectionClaims bind a token to one tenant's server
type ConnectionClaims struct {
	TenantID string `json:"tenant_id"`
	ServerID string `json:"server_id"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 tokens
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a service signing with secret
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), now: time.Now}
}

func (s *TokenService) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// IssueManagementToken signs a token for tenant valid for ttl
func (s *TokenService) IssueManagementToken(tenant *models.Tenant, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultManagementTTL
	}
	claims := ManagementClaims{
		TenantID:         tenant.Id,
		Email:            tenant.Email,
		IsAdmin:          tenant.IsAdmin,
		RegisteredClaims: s.registered(tenant.Id, ttl),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// IssueConnectionToken signs a token that opens a session on serverID
func (s *TokenService) IssueConnectionToken(tenantID, serverID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultConnectionTTL
	}
	claims := ConnectionClaims{
		TenantID:         tenantID,
		ServerID:         serverID,
		Purpose:          PurposeConnection,
		RegisteredClaims: s.registered(tenantID, ttl),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *TokenService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// VerifyManagement validates a management token and returns its claims
func (s *TokenService) VerifyManagement(tokenString string) (*ManagementClaims, error) {
	claims := &ManagementClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, ErrWrongPurpose
	}
	if claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyConnection validates a connection token for tenantID and serverID
func (s *TokenService) VerifyConnection(tokenString, tenantID, serverID string) error {
	claims := &ConnectionClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return err
	}
	if claims.Purpose != PurposeConnection {
		return ErrWrongPurpose
	}
	if claims.TenantID != tenantID || claims.ServerID != serverID {
		return fmt.Errorf("%w: token bound to another server", ErrInvalidToken)
	}
	return nil
}

// ConnectionAuthenticator checks connection tokens issued by a TokenService
type ConnectionAuthenticator struct {
	Tokens *TokenService
}

func (a ConnectionAuthenticator) Authenticate(ctx context.Context, tenantID, serverID, token string) error {
	if err := a.Tokens.VerifyConnection(token, tenantID, serverID); err != nil {
		return fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	return nil
}

// AllowAll accepts any non-empty token
type AllowAll struct{}

func (AllowAll) Authenticate(ctx context.Context, tenantID, serverID, token string) error {
	if token == "" {
		return models.ErrUnauthorized
	}
	return nil
}
