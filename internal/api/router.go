package api

import (
	"net"
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/mindnest/auth-service/internal/api/handler"
	"github.com/mindnest/auth-service/internal/api/middleware"
	"github.com/mindnest/auth-service/internal/core/domain"
	"github.com/mindnest/auth-service/internal/core/ports"
	"github.com/mindnest/auth-service/internal/docs"
	"github.com/mindnest/auth-service/internal/infrastructure/ratelimit"
)

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Service        ports.AuthService
	Tokens         ports.TokenVerifier
	GeneralLimiter *ratelimit.Limiter
	AdminLimiter   *ratelimit.Limiter
	HealthChecks   map[string]handler.HealthCheck
	Log            zerolog.Logger
	// Debug exposes internal error text in responses.
	Debug       bool
	RoutePrefix string
	// Registry receives the HTTP metrics. Nil means the default registry.
	Registry *prometheus.Registry
	// TrustedProxies are the ranges whose X-Forwarded-For is believed. When
	// empty the client address is the socket peer.
	TrustedProxies []*net.IPNet
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log, deps.Debug)
	e.IPExtractor = ipExtractor(deps.TrustedProxies)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Log))
	e.Use(echomiddleware.Secure())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.BodyLimit("1M"))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "auth",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/metrics" || strings.HasPrefix(p, "/health") || strings.HasPrefix(p, "/swagger")
		},
	}))

	// --- Operational endpoints (no auth required) ---
	health := handler.NewHealthHandler(deps.HealthChecks, deps.Log)
	e.GET("/health", health.Liveness)       // liveness  – is the process alive?
	e.GET("/health/ready", health.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))

	prefix := strings.TrimSuffix(deps.RoutePrefix, "/")
	if prefix != "" {
		docs.SwaggerInfo.BasePath = prefix
	}
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Auth routes ---
	auth := handler.NewAuthHandler(deps.Service)
	general := middleware.RateLimit(deps.GeneralLimiter, deps.Log)
	admin := middleware.RateLimit(deps.AdminLimiter, deps.Log)
	authenticate := middleware.Authenticate(deps.Tokens)

	g := e.Group(prefix)
	g.POST("/register", auth.Register, general)
	g.POST("/login", auth.Login, general)
	g.POST("/refresh-token", auth.RefreshToken, general)
	g.GET("/verify-token", auth.VerifyToken, general, authenticate)
	g.GET("/profile", auth.Profile, authenticate)
	g.POST("/logout", auth.Logout, authenticate)
	g.GET("/session", auth.Session, middleware.OptionalAuth(deps.Tokens, deps.Log))

	// --- Admin routes ---
	adm := g.Group("/admin", admin, authenticate, middleware.RequireRole(domain.RoleAdmin))
	adm.POST("/create", auth.CreateAdmin)
	adm.GET("/users", auth.ListAccounts)

	return e
}

// ipExtractor decides what c.RealIP returns, which keys the rate limiters.
// Forwarding headers are only honoured behind an explicitly trusted proxy.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, r := range trusted {
		opts = append(opts, echo.TrustIPRange(r))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
