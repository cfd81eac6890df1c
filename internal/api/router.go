package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davitran/hubsync/internal/app"
	iauth "github.com/davitran/hubsync/internal/auth"
	"github.com/davitran/hubsync/internal/handlers"
	"github.com/davitran/hubsync/internal/hubspot"
	"github.com/davitran/hubsync/internal/middleware"
	"github.com/davitran/hubsync/internal/services"
	"github.com/davitran/hubsync/pkg/mail"
)

// Dependencies bundles everything the router needs. All services are
// constructed by the caller and injected here.
type Dependencies struct {
	Config   *app.Config
	Users    *services.UserService
	Contacts *services.ContactService
	JWT      *iauth.JWTService
	Reset    *iauth.ResetTokenService
	Mailer   mail.Mailer
	HubSpot  *hubspot.Client
}

// NewRouter builds the Gin engine, wires middleware, and registers routes.
// Requests with or without a trailing slash hit the same handler via Gin's
// trailing-slash redirect.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	accountHandler, err := handlers.NewAccountHandler(deps.Users, deps.JWT, deps.Reset, deps.Mailer, handlers.AccountConfig{
		BaseURL:             deps.Config.Server.BaseURL,
		AllowedEmailDomains: deps.Config.Accounts.AllowedEmailDomains,
	})
	if err != nil {
		return nil, err
	}

	contactHandler, err := handlers.NewContactHandler(deps.Contacts)
	if err != nil {
		return nil, err
	}

	hubspotHandler, err := handlers.NewHubSpotHandler(deps.HubSpot)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.NoRoute(middleware.NotFoundHandler)

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Account workflow (public; change-password checks its bearer token itself)
	accounts := r.Group("/accounts")
	{
		accounts.POST("/:action", accountHandler.Dispatch)
		accounts.GET("/:action/:token", accountHandler.DispatchWithToken)
		accounts.POST("/:action/:uid/:token", accountHandler.DispatchWithUID)
	}

	requireAuth := middleware.Auth(deps.JWT)

	// Contact mirror
	contacts := r.Group("/contacts", requireAuth)
	{
		contacts.GET("", contactHandler.List)
		contacts.POST("", contactHandler.Create)
		contacts.GET("/:id", contactHandler.Get)
		contacts.PUT("/:id", contactHandler.Update)
		contacts.DELETE("/:id", contactHandler.Delete)
	}

	// HubSpot reporting passthrough
	hubspotRoutes := r.Group("/hubspot", requireAuth)
	{
		hubspotRoutes.GET("/:action", hubspotHandler.Dispatch)
	}

	return r, nil
}
