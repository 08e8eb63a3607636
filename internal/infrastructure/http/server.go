package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	handlers "github.com/wekeepgrowing/paycore/internal/adapter/handler/http"
	"github.com/wekeepgrowing/paycore/internal/config"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/database"
	"github.com/wekeepgrowing/paycore/internal/middleware/auth"
	"github.com/wekeepgrowing/paycore/internal/usecase"
	"github.com/wekeepgrowing/paycore/pkg/logger"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Checkout   *usecase.CheckoutService
	Reconciler *usecase.ReconcileService
	Capture    *usecase.CaptureService
	Refunds    *usecase.RefundService
	Orders     *usecase.OrderQueryService
}

type Server struct {
	config    *config.Config
	logger    *zap.Logger
	echo      *echo.Echo
	db        *gorm.DB
	repos     *repository.Repositories
	providers *provider.Registry
	services  Services
}

func NewServer(cfg *config.Config, log *zap.Logger, db *gorm.DB, repos *repository.Repositories, providers *provider.Registry, services Services) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewRequestValidator()
	logger.WithEchoLogger(e, log)

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(logger.NewEchoRequestLogger(log))
	e.Use(middleware.Recover())
	if cfg.Server.HTTP.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.HTTP.BodyLimit))
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.HTTP.AllowedOrigins,
		AllowMethods: []string{echo.GET, echo.POST},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key", "Accept-Language"},
	}))

	s := &Server{
		config:    cfg,
		logger:    log,
		echo:      e,
		db:        db,
		repos:     repos,
		providers: providers,
		services:  services,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		if s.db != nil {
			if err := database.Ping(s.db); err != nil {
				s.logger.Warn("Health check failed", zap.Error(err))
				return c.JSON(http.StatusServiceUnavailable, map[string]string{
					"status":  "unhealthy",
					"service": s.config.Service.Name,
				})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	// Initialize handlers
	checkoutHandler := handlers.NewCheckoutHandler(s.logger, s.services.Checkout, s.services.Reconciler, s.services.Capture)
	webhookHandler := handlers.NewWebhookHandler(s.logger, s.providers, s.services.Reconciler, s.repos.Stores)
	refundHandler := handlers.NewRefundHandler(s.logger, s.services.Refunds, s.services.Orders)

	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Issuer: s.config.JWT.Issuer,
		Logger: s.logger,
	}

	v1 := s.echo.Group("/api/v1")

	// Public storefront routes
	checkout := v1.Group("/checkout")
	checkout.POST("/capture", checkoutHandler.Capture)
	checkout.POST("/:storeSlug/payments", checkoutHandler.CreatePayment)
	checkout.POST("/:storeSlug/payments/:pendingId/poll", checkoutHandler.PollPayment)

	// Merchant staff routes
	staff := v1.Group("", auth.JWTMiddleware(jwtConfig))
	staff.POST("/refunds", refundHandler.CreateRefund)
	staff.GET("/stores/:storeSlug/orders/:orderId", refundHandler.GetOrder)

	// Provider callbacks (outside API versioning, store scoped by route)
	callbacks := s.echo.Group("/callbacks/:storeSlug/:provider")
	callbacks.POST("", webhookHandler.HandleCallback)
	callbacks.GET("/return", webhookHandler.HandleReturn)
}
