package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/mindnest/auth-service/internal/core/domain"
)

// currentIdentity returns the identity attached by the authentication
// middleware. Its absence means the route was wired without it.
func currentIdentity(c echo.Context) (domain.Identity, error) {
	id, ok := domain.IdentityFrom(c.Request().Context())
	if !ok || id.ID == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}
