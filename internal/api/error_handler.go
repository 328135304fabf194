package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mindnest/auth-service/internal/api/handler"
	"github.com/mindnest/auth-service/internal/core/domain"
)

const (
	msgValidation = "Validation failed"
	msgInternal   = "Internal server error"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorTable maps domain errors to public responses. Order matters: the
// first match wins.
var errorTable = []errorMapping{
	{domain.ErrDuplicateEmail, http.StatusConflict, "User with this email already exists"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{domain.ErrMissingToken, http.StatusUnauthorized, "Access token is required"},
	{domain.ErrWrongTokenType, http.StatusUnauthorized, "Invalid or expired token"},
	{domain.ErrMalformedToken, http.StatusUnauthorized, "Invalid or expired token"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "Authentication required"},
	{domain.ErrForbidden, http.StatusForbidden, "Insufficient permissions"},
	{domain.ErrAccountNotFound, http.StatusNotFound, "User not found"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "Too many requests, please try again later"},
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status and public message.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders the standard envelope: {"success": false, "message": "..."}.
//
// With debug set, the internal error text of unexpected errors is added
// under "error". Mapped errors never carry it, so a rejected token does not
// reveal which check failed.
func NewHTTPErrorHandler(log zerolog.Logger, debug bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, resp, unexpected := resolveError(err, log, c)
		if debug && unexpected {
			resp.Error = err.Error()
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}

// resolveError reports unexpected as true only for errors that fall through
// to the generic 500 response.
func resolveError(err error, log zerolog.Logger, c echo.Context) (status int, resp handler.Response, unexpected bool) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, handler.Response{Message: msgValidation, Errors: verr.Fields}, false
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			log.Debug().Err(err).Int("status", m.status).Str("path", c.Path()).Msg("request rejected")
			return m.status, handler.Response{Message: m.message}, false
		}
	}

	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprintf("%v", he.Message)
		if he.Code >= http.StatusInternalServerError {
			log.Error().Err(err).Str("method", c.Request().Method).Str("path", c.Path()).Msg("http error")
		}
		return he.Code, handler.Response{Message: msg}, false
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, handler.Response{Message: msgInternal}, true
}
