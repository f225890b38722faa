// Package app is the HTTP surface of the availability service.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"availability-service/internal/availability"
	"availability-service/internal/booking"
	"availability-service/internal/contact"
)

// Gateway is the credential side of the calendar gateway.
type Gateway interface {
	Authenticated() bool
	BeginConsent() (string, error)
	CompleteConsent(ctx context.Context, code, state string) error
}

type AvailabilityService interface {
	ParseDate(key string) (time.Time, error)
	RangeAvailability(ctx context.Context, first, last time.Time) (availability.Map, error)
	DaySlots(ctx context.Context, day time.Time) (availability.Day, error)
}

type Booker interface {
	BookSlot(ctx context.Context, req booking.Request) (booking.Confirmation, error)
}

type ContactRelay interface {
	Submit(ctx context.Context, msg contact.Message) error
}

// App holds the handlers' dependencies. Contact may be nil, in which case
// the contact route is not mounted.
type App struct {
	Gateway      Gateway
	Availability AvailabilityService
	Booking      Booker
	Contact      ContactRelay
	Admin        AdminAuth
	// FrontendURL receives the browser after consent and is the only CORS
	// origin allowed.
	FrontendURL string
	Logger      *slog.Logger
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Router mounts every route twice: at the root and under /api, where the
// consent routes live at /api/google/auth and /api/google/callback.
func (a *App) Router() *gin.Engine {
	useJSONFieldNames()

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(a.logger()), corsMiddleware(a.FrontendURL))

	router.GET("/healthz", a.HealthHandler)

	admin := a.Admin.Middleware()
	router.GET("/auth/start", admin, a.AuthStartHandler)
	router.GET("/auth/callback", a.AuthCallbackHandler)

	api := router.Group("/api")
	api.GET("/google/auth", admin, a.AuthStartHandler)
	api.GET("/google/callback", a.AuthCallbackHandler)
	api.GET("/healthz", a.HealthHandler)

	for _, g := range []gin.IRoutes{router, api} {
		g.GET("/availability", a.AvailabilityHandler)
		g.GET("/availability/slots", a.SlotsHandler)
		g.POST("/book-slot", a.BookSlotHandler)
		if a.Contact != nil {
			g.POST("/contact", a.ContactHandler)
		}
	}
	return router
}
