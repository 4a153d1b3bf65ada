package api

import (
	"context"

	"tpv-fleet/internal/interfaces"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"tpv-fleet/internal/dispatch"
	"tpv-fleet/internal/toggle"
	"tpv-fleet/internal/wizard"
)

// Server is the public REST surface of the fleet bridge.
type Server struct {
	echo *echo.Echo

	dispatcher *dispatch.Dispatcher
	toggles    *toggle.Manager
	wizards    *wizard.Manager
	db         interfaces.DatabaseService
	logger     interfaces.Logger
}

func NewServer(
	dispatcher *dispatch.Dispatcher,
	toggles *toggle.Manager,
	wizards *wizard.Manager,
	db interfaces.DatabaseService,
	logger interfaces.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		dispatcher: dispatcher,
		toggles:    toggles,
		wizards:    wizards,
		db:         db,
		logger:     logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.echo.Group("/api/v1")

	v1.GET("/health", s.HealthCheck)
	v1.GET("/commands/catalog", s.GetCommandCatalog)

	// Terminal control
	v1.POST("/terminals/:id/commands", s.DispatchCommand)
	v1.DELETE("/terminals/:id/commands/:type/confirmation", s.CancelConfirmation)
	v1.GET("/terminals/:id/commands/inflight", s.GetInFlight)
	v1.GET("/terminals/:id/online", s.GetOnline)
	v1.POST("/terminals/:id/activate", s.RemoteActivate)
	v1.GET("/terminals/:id", s.GetTerminal)

	// Debounced toggles
	v1.POST("/terminals/:id/toggles/:kind", s.RequestToggle)
	v1.GET("/terminals/:id/toggles/:kind", s.GetToggleState)
	v1.POST("/terminals/:id/toggles/:kind/payload", s.SubmitTogglePayload)
	v1.DELETE("/terminals/:id/toggles/:kind/payload", s.CancelTogglePayload)

	// Venue-scoped resources
	v1.GET("/venues/:venueId/terminals", s.ListTerminals)
	v1.GET("/venues/:venueId/terminals/:id/commands", s.GetCommandHistory)

	// Purchase wizard
	v1.POST("/venues/:venueId/purchase", s.StartPurchase)
	v1.GET("/purchase/:sessionId", s.GetPurchase)
	v1.PUT("/purchase/:sessionId/step/:n", s.SubmitPurchaseStep)
	v1.POST("/purchase/:sessionId/back", s.PurchaseBack)
	v1.POST("/purchase/:sessionId/edit/:n", s.PurchaseEdit)
	v1.PUT("/purchase/:sessionId/terms", s.PurchaseTerms)
	v1.GET("/purchase/:sessionId/review", s.PurchaseReview)
	v1.POST("/purchase/:sessionId/complete", s.CompletePurchase)
	v1.DELETE("/purchase/:sessionId", s.CancelPurchase)
}

// Start blocks serving the API.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
