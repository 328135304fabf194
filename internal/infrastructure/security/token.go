package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mindnest/auth-service/internal/core/domain"
)

const (
	Issuer   = "mindnest-auth-service"
	Audience = "mindnest-platform"

	DefaultAccessTTL = 24 * time.Hour
	RefreshTTL       = 7 * 24 * time.Hour
)

var errEmptySecret = errors.New("token engine: signing secret is empty")

// accountClaims is the JWT payload. Role is omitted on refresh tokens.
type accountClaims struct {
	Email string           `json:"email,omitempty"`
	Role  domain.Role      `json:"role,omitempty"`
	Type  domain.TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// TokenEngine signs and verifies HS256 tokens bound to Issuer and Audience.
type TokenEngine struct {
	secret    []byte
	accessTTL time.Duration
	expiresIn string
	now       func() time.Time
}

// TokenOption customises a TokenEngine.
type TokenOption func(*TokenEngine)

// WithClock overrides the time source used for signing and verification.
func WithClock(now func() time.Time) TokenOption {
	return func(e *TokenEngine) { e.now = now }
}

// WithExpiresInLabel sets the human-readable access TTL reported to clients.
func WithExpiresInLabel(label string) TokenOption {
	return func(e *TokenEngine) { e.expiresIn = label }
}

// NewTokenEngine creates an engine signing with secret. A non-positive
// accessTTL selects DefaultAccessTTL.
func NewTokenEngine(secret string, accessTTL time.Duration, opts ...TokenOption) (*TokenEngine, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	e := &TokenEngine{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.expiresIn == "" {
		e.expiresIn = FormatTTL(accessTTL)
	}
	return e, nil
}

// AccessTTL returns the configured access token lifetime.
func (e *TokenEngine) AccessTTL() time.Duration { return e.accessTTL }

// IssueAccess signs an access token carrying the account's role.
func (e *TokenEngine) IssueAccess(account *domain.Account) (string, error) {
	return e.sign(accountClaims{
		Email: account.Email,
		Role:  account.Role,
		Type:  domain.TokenAccess,
	}, account.ID, e.accessTTL)
}

// IssueRefresh signs a refresh token. It carries no role so the role is
// looked up again when the refresh token is exchanged.
func (e *TokenEngine) IssueRefresh(account *domain.Account) (string, error) {
	return e.sign(accountClaims{
		Email: account.Email,
		Type:  domain.TokenRefresh,
	}, account.ID, RefreshTTL)
}

// IssuePair signs a fresh access and refresh token for account.
func (e *TokenEngine) IssuePair(account *domain.Account) (domain.TokenPair, error) {
	access, err := e.IssueAccess(account)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := e.IssueRefresh(account)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    e.expiresIn,
	}, nil
}

func (e *TokenEngine) sign(claims accountClaims, subject string, ttl time.Duration) (string, error) {
	now := e.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry. Every failure is
// reported as domain.ErrInvalidToken; the cause is wrapped for logging only.
func (e *TokenEngine) Verify(token string) (*domain.Claims, error) {
	claims := &accountClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return e.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(e.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, domain.ErrInvalidToken
	}
	if claims.Type != domain.TokenAccess && claims.Type != domain.TokenRefresh {
		return nil, fmt.Errorf("%w: unknown token type %q", domain.ErrInvalidToken, claims.Type)
	}
	return toDomainClaims(claims), nil
}

// Decode reads the claims without checking the signature. The result must
// never be used for authorization decisions.
func (e *TokenEngine) Decode(token string) (*domain.Claims, error) {
	claims := &accountClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedToken, err)
	}
	return toDomainClaims(claims), nil
}

// Expiration returns the token's expiry as read by Decode.
func (e *TokenEngine) Expiration(token string) (time.Time, bool) {
	claims, err := e.Decode(token)
	if err != nil || claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}

// IsExpired reports whether token is undecodable, has no expiry, or is past
// its expiry. It is not an authorization check.
func (e *TokenEngine) IsExpired(token string) bool {
	exp, ok := e.Expiration(token)
	if !ok {
		return true
	}
	return !e.now().Before(exp)
}

func toDomainClaims(c *accountClaims) *domain.Claims {
	out := &domain.Claims{
		ID:       c.ID,
		Subject:  c.Subject,
		Email:    c.Email,
		Role:     c.Role,
		Kind:     c.Type,
		Issuer:   c.Issuer,
		Audience: c.Audience,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

// FormatTTL renders d in the largest whole unit (d, h, m, s), e.g. "24h".
func FormatTTL(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d%(24*time.Hour) == 0 && d >= 48*time.Hour:
		return strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "d"
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	default:
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	}
}
