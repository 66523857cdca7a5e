package listing

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	listingrepo "github.com/Ramsey-B/fern/internal/repositories/listing"
	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Register registers listing routes
func Register(g *echo.Group) {
	g.GET("", ListListings)
	g.GET("/:id", GetListing)
}

// ListListings lists the active listings of a seller
func ListListings(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "listing_handler.ListListings")
	defer span.End()

	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	sellerID := c.QueryParam("seller_id")
	if sellerID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "seller_id query parameter is required")
	}

	ctx, repo, err := ectoinject.GetContext[*listingrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	listings, err := repo.ListBySeller(ctx, tenantID, sellerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, listings)
}

// GetListing returns a single listing with its lease offers
func GetListing(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "listing_handler.GetListing")
	defer span.End()

	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*listingrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
