package taxonomy

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	taxonomyrepo "github.com/Ramsey-B/fern/internal/repositories/taxonomy"
	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// CreateModelRequest adds a model directly under a make
type CreateModelRequest struct {
	Name string `json:"name" validate:"required"`
}

// Register registers taxonomy routes
func Register(g *echo.Group) {
	g.GET("/makes", ListMakes)
	g.GET("/makes/:id/models", ListModels)
	g.POST("/makes/:id/models", CreateModel)
}

// ListMakes lists the tenant's makes
func ListMakes(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "taxonomy_handler.ListMakes")
	defer span.End()

	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*taxonomyrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	makes, err := repo.ListMakes(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, makes)
}

// ListModels lists the models under a make
func ListModels(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "taxonomy_handler.ListModels")
	defer span.End()

	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	makeID := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*taxonomyrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.ListModels(ctx, tenantID, makeID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// CreateModel adds a model under an existing make
func CreateModel(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "taxonomy_handler.CreateModel")
	defer span.End()

	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	makeID := c.Param("id")

	var req CreateModelRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*taxonomyrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if _, err := repo.GetMake(ctx, tenantID, makeID); err != nil {
		return err
	}

	model := &models.CarModel{
		TenantID: tenantID,
		MakeID:   makeID,
		Name:     req.Name,
	}
	if err := repo.CreateModel(ctx, model); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, model)
}
