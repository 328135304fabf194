package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mindnest/auth-service/internal/core/domain"
	"github.com/mindnest/auth-service/internal/core/ports"
)

// AuthHandler handles HTTP requests for the authentication endpoints.
type AuthHandler struct {
	service ports.AuthService
}

func NewAuthHandler(service ports.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// bindAndValidate decodes the request into req and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return c.Validate(req)
}

// Register creates a new user or psychiatrist account.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  Response{data=authData}
// @Failure      400   {object}  Response
// @Failure      409   {object}  Response
// @Failure      429   {object}  Response
// @Failure      500   {object}  Response
// @Router       /register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.service.Register(c.Request().Context(), ports.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, ok("User registered successfully", authData{
		User:   toUserResponse(res.Account),
		Tokens: toTokensResponse(res.Tokens),
	}))
}

// Login authenticates an account and returns a token pair.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  Response{data=authData}
// @Failure      400   {object}  Response
// @Failure      401   {object}  Response
// @Failure      429   {object}  Response
// @Router       /login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.service.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ok("Login successful", authData{
		User:   toUserResponse(res.Account),
		Tokens: toTokensResponse(res.Tokens),
	}))
}

// RefreshToken exchanges a refresh token for a new token pair.
//
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  Response{data=tokensData}
// @Failure      400   {object}  Response
// @Failure      401   {object}  Response
// @Router       /refresh-token [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	pair, err := h.service.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ok("Token refreshed successfully", tokensData{Tokens: toTokensResponse(pair)}))
}

// VerifyToken confirms the access token still maps to an active account.
//
// @Summary      Verify access token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  Response{data=userData}
// @Failure      401  {object}  Response
// @Router       /verify-token [get]
func (h *AuthHandler) VerifyToken(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}

	acc, err := h.service.Account(c.Request().Context(), id.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("%w: subject no longer active", domain.ErrInvalidToken)
		}
		return err
	}

	return c.JSON(http.StatusOK, ok("Token is valid", userData{User: toUserResponse(acc)}))
}

// Profile returns the caller's account.
//
// @Summary      Current profile
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  Response{data=userData}
// @Failure      401  {object}  Response
// @Failure      404  {object}  Response
// @Router       /profile [get]
func (h *AuthHandler) Profile(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}

	acc, err := h.service.Account(c.Request().Context(), id.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ok("Profile retrieved successfully", userData{User: toUserResponse(acc)}))
}

// Logout acknowledges a logout. Tokens are stateless and are discarded by
// the client.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  Response
// @Failure      401  {object}  Response
// @Router       /logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	return c.JSON(http.StatusOK, ok("Logout successful", nil))
}

// Session reports whether the request carries a valid access token.
//
// @Summary      Session status
// @Tags         auth
// @Produce      json
// @Param        Authorization  header    string  false  "Bearer access token"
// @Success      200            {object}  Response{data=sessionData}
// @Router       /session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	id, found := domain.IdentityFrom(c.Request().Context())
	if !found {
		return c.JSON(http.StatusOK, ok("Anonymous session", sessionData{}))
	}
	return c.JSON(http.StatusOK, ok("Authenticated session", sessionData{
		Authenticated: true,
		User:          toIdentityResponse(id),
	}))
}

// CreateAdmin creates an administrator account.
//
// @Summary      Create admin
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createAdminRequest  true  "Admin credentials"
// @Success      201   {object}  Response{data=userData}
// @Failure      400   {object}  Response
// @Failure      401   {object}  Response
// @Failure      403   {object}  Response
// @Failure      409   {object}  Response
// @Failure      429   {object}  Response
// @Router       /admin/create [post]
func (h *AuthHandler) CreateAdmin(c echo.Context) error {
	var req createAdminRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	acc, err := h.service.CreateAdmin(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, ok("Admin user created successfully", userData{User: toUserResponse(acc)}))
}

// ListAccounts returns a page of active accounts.
//
// @Summary      List accounts
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int  false  "Page size (1-100, default 50)"
// @Param        offset  query     int  false  "Rows to skip"
// @Success      200     {object}  Response{data=usersData}
// @Failure      400     {object}  Response
// @Failure      401     {object}  Response
// @Failure      403     {object}  Response
// @Router       /admin/users [get]
func (h *AuthHandler) ListAccounts(c echo.Context) error {
	var q listAccountsQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	page, err := h.service.ListAccounts(c.Request().Context(), q.Limit, q.Offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ok("Users retrieved successfully", usersData{
		Users: toUserResponses(page.Accounts),
		Pagination: pagination{
			Total:  page.Total,
			Limit:  page.Limit,
			Offset: page.Offset,
		},
	}))
}
