package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mindnest/auth-service/internal/api/metrics"
	"github.com/mindnest/auth-service/internal/core/domain"
	"github.com/mindnest/auth-service/internal/core/ports"
)

// IdentityKey is the echo context key holding the domain.Identity.
const IdentityKey = "identity"

// Authenticate requires a valid access token and attaches the caller's
// identity to both the echo context and the request context.
func Authenticate(verifier ports.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := identify(verifier, c)
			if err != nil {
				metrics.AuthRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
				return err
			}
			attach(c, id)
			return next(c)
		}
	}
}

// OptionalAuth attaches an identity when a valid access token is present
// and otherwise lets the request through anonymously.
func OptionalAuth(verifier ports.TokenVerifier, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := identify(verifier, c)
			switch {
			case err == nil:
				attach(c, id)
			case !errors.Is(err, domain.ErrMissingToken):
				log.Debug().Err(err).Msg("optional auth token ignored")
			}
			return next(c)
		}
	}
}

// Identity returns the identity attached by Authenticate or OptionalAuth.
func Identity(c echo.Context) (domain.Identity, bool) {
	id, ok := c.Get(IdentityKey).(domain.Identity)
	return id, ok
}

func identify(verifier ports.TokenVerifier, c echo.Context) (domain.Identity, error) {
	token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if token == "" {
		return domain.Identity{}, domain.ErrMissingToken
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		return domain.Identity{}, err
	}
	if claims.Kind != domain.TokenAccess {
		return domain.Identity{}, domain.ErrWrongTokenType
	}
	return domain.Identity{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// bearerToken strips an optional "Bearer " prefix. A header without the
// prefix is taken as the raw token.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= len("Bearer") && strings.EqualFold(header[:len("Bearer")], "Bearer") {
		rest := header[len("Bearer"):]
		if rest == "" {
			return ""
		}
		if rest[0] == ' ' {
			return strings.TrimSpace(rest)
		}
	}
	return header
}

func attach(c echo.Context, id domain.Identity) {
	c.Set(IdentityKey, id)
	req := c.Request()
	c.SetRequest(req.WithContext(domain.WithIdentity(req.Context(), id)))
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, domain.ErrWrongTokenType):
		return "wrong_token_type"
	default:
		return "invalid_token"
	}
}
