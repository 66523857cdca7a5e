package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/change"
	"github.com/Ramsey-B/fern/pkg/routes/listing"
	"github.com/Ramsey-B/fern/pkg/routes/session"
	"github.com/Ramsey-B/fern/pkg/routes/taxonomy"
)

// New builds the echo instance with the standard middleware stack and
// all route groups registered. Health endpoints are registered
// separately by the health.Checker once its dependencies exist.
func New(logger ectologger.Logger, serviceName string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	api := e.Group("/api/v1")
	session.Register(api.Group("/sessions"))
	change.Register(api.Group("/changes"))
	listing.Register(api.Group("/listings"))
	taxonomy.Register(api.Group("/taxonomy"))

	return e
}
