package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mindnest/auth-service/internal/core/domain"
)

const testSecret = "test-secret"

func testAccount() *domain.Account {
	return &domain.Account{
		ID:    "acc-1",
		Email: "alice@example.com",
		Role:  domain.RolePsychiatrist,
	}
}

func newEngine(t *testing.T, opts ...TokenOption) *TokenEngine {
	t.Helper()
	e, err := NewTokenEngine(testSecret, time.Hour, opts...)
	if err != nil {
		t.Fatalf("NewTokenEngine: %v", err)
	}
	return e
}

// tamper replaces one character in the middle of the signature segment.
func tamper(token string) string {
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	i := len(sig) / 2
	if sig[i] == 'A' {
		sig[i] = 'B'
	} else {
		sig[i] = 'A'
	}
	parts[2] = string(sig)
	return strings.Join(parts, ".")
}

func TestNewTokenEngine_RequiresSecret(t *testing.T) {
	if _, err := NewTokenEngine("", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestNewTokenEngine_DefaultTTL(t *testing.T) {
	e, err := NewTokenEngine(testSecret, 0)
	if err != nil {
		t.Fatalf("NewTokenEngine: %v", err)
	}
	if e.AccessTTL() != DefaultAccessTTL {
		t.Fatalf("expected %s, got %s", DefaultAccessTTL, e.AccessTTL())
	}
}

func TestTokenEngine_VerifyAccess(t *testing.T) {
	e := newEngine(t)
	acc := testAccount()

	token, err := e.IssueAccess(acc)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	claims, err := e.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != acc.ID {
		t.Errorf("sub = %q, want %q", claims.Subject, acc.ID)
	}
	if claims.Kind != domain.TokenAccess {
		t.Errorf("type = %q, want access", claims.Kind)
	}
	if claims.Role != domain.RolePsychiatrist || claims.Email != acc.Email {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != Issuer || len(claims.Audience) != 1 || claims.Audience[0] != Audience {
		t.Errorf("unexpected issuer/audience: %s %v", claims.Issuer, claims.Audience)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != time.Hour {
		t.Errorf("access ttl = %s, want 1h", got)
	}
}

func TestTokenEngine_RefreshOmitsRole(t *testing.T) {
	e := newEngine(t)

	token, err := e.IssueRefresh(testAccount())
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	claims, err := e.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Kind != domain.TokenRefresh {
		t.Errorf("type = %q, want refresh", claims.Kind)
	}
	if claims.Role != "" {
		t.Errorf("refresh token must not carry a role, got %q", claims.Role)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != RefreshTTL {
		t.Errorf("refresh ttl = %s, want %s", got, RefreshTTL)
	}
}

func TestTokenEngine_IssuePairDiffersPerCall(t *testing.T) {
	e := newEngine(t)
	acc := testAccount()

	first, err := e.IssuePair(acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	second, err := e.IssuePair(acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if first.AccessToken == second.AccessToken || first.RefreshToken == second.RefreshToken {
		t.Fatal("tokens issued back to back must differ")
	}
	if first.ExpiresIn != "1h" {
		t.Errorf("expiresIn = %q, want 1h", first.ExpiresIn)
	}
}

func TestTokenEngine_VerifyRejections(t *testing.T) {
	e := newEngine(t)
	acc := testAccount()
	valid, _ := e.IssueAccess(acc)

	other, _ := NewTokenEngine("another-secret", time.Hour)
	foreignSig, _ := other.IssueAccess(acc)

	past := time.Now().Add(-48 * time.Hour)
	expiredEngine := newEngine(t, WithClock(func() time.Time { return past }))
	expired, _ := expiredEngine.IssueAccess(acc)

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acc.ID,
		"type": "access",
		"iss":  "someone-else",
		"aud":  Audience,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))

	wrongAudience, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acc.ID,
		"type": "access",
		"iss":  Issuer,
		"aud":  "another-platform",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acc.ID,
		"type": "access",
		"iss":  Issuer,
		"aud":  Audience,
	}).SignedString([]byte(testSecret))

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  acc.ID,
		"type": "access",
		"iss":  Issuer,
		"aud":  Audience,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"tampered signature": tamper(valid),
		"foreign secret":     foreignSig,
		"expired":            expired,
		"wrong issuer":       wrongIssuer,
		"wrong audience":     wrongAudience,
		"missing expiry":     noExpiry,
		"alg none":           noneAlg,
		"garbage":            "not-a-token",
		"empty":              "",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Verify(token)
			if !errors.Is(err, domain.ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenEngine_DecodeSkipsSignature(t *testing.T) {
	e := newEngine(t)
	token, _ := e.IssueAccess(testAccount())

	claims, err := e.Decode(tamper(token))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.Subject != "acc-1" {
		t.Errorf("sub = %q", claims.Subject)
	}

	if _, err := e.Decode("###"); !errors.Is(err, domain.ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestTokenEngine_IsExpired(t *testing.T) {
	now := time.Now()
	clock := now
	e := newEngine(t, WithClock(func() time.Time { return clock }))

	token, _ := e.IssueAccess(testAccount())
	if e.IsExpired(token) {
		t.Fatal("fresh token reported expired")
	}

	clock = now.Add(2 * time.Hour)
	if !e.IsExpired(token) {
		t.Fatal("token past expiry reported valid")
	}

	if !e.IsExpired("garbage") {
		t.Fatal("undecodable token must be reported expired")
	}

	exp, ok := e.Expiration(token)
	if !ok || exp.Unix() != now.Add(time.Hour).Unix() {
		t.Fatalf("unexpected expiration %v %v", exp, ok)
	}
}

func TestFormatTTL(t *testing.T) {
	cases := map[time.Duration]string{
		24 * time.Hour:     "24h",
		7 * 24 * time.Hour: "7d",
		90 * time.Minute:   "90m",
		45 * time.Second:   "45s",
	}
	for in, want := range cases {
		if got := FormatTTL(in); got != want {
			t.Errorf("FormatTTL(%s) = %q, want %q", in, got, want)
		}
	}
}
