package session

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/change"
	"github.com/Ramsey-B/fern/internal/repositories/comparisonsession"
	"github.com/Ramsey-B/fern/pkg/apply"
	"github.com/Ramsey-B/fern/pkg/comparison"
	ctxmiddleware "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/review"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers comparison session routes
func Register(g *echo.Group) {
	g.GET("", ListSessions)
	g.GET("/:id", GetSession)
	g.GET("/:id/changes", ListChanges)
	g.POST("/:id/apply", ApplySelected)
	g.GET("/:id/unmapped", ListUnmapped)
	g.POST("/:id/missing-models", ResolveMissingModel)
}

// ListSessions lists comparison sessions for the tenant, newest first
func ListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.ListSessions")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	sellerID := c.QueryParam("seller_id")
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*comparisonsession.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.List(ctx, tenantID, sellerID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// GetSession returns a single comparison session with its summary counts
func GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.GetSession")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*comparisonsession.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	session, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, session)
}

// ListChanges lists the changes of a session, optionally filtered by
// change_type and status query params
func ListChanges(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.ListChanges")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	sessionID := c.Param("id")

	filter := change.Filter{
		ChangeType: models.ChangeType(c.QueryParam("change_type")),
		Status:     models.ChangeStatus(c.QueryParam("status")),
	}

	ctx, repo, err := ectoinject.GetContext[*change.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	changes, err := repo.ListBySession(ctx, tenantID, sessionID, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ChangeListResponse{
		Items:      changes,
		TotalCount: len(changes),
	})
}

// ApplySelected applies the selected changes of a session and discards
// the pending remainder
func ApplySelected(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.ApplySelected")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	sessionID := c.Param("id")

	var req models.ApplySelectedRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*apply.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.ApplySelected(ctx, tenantID, sessionID, req.ChangeIDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ListUnmapped lists active listings of the session's seller that the
// extraction did not reference at all
func ListUnmapped(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.ListUnmapped")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	sessionID := c.Param("id")

	ctx, sessions, err := ectoinject.GetContext[*comparisonsession.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	session, err := sessions.Get(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}

	ctx, detector, err := ectoinject.GetContext[*comparison.Detector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	listings, err := detector.FindUnmapped(ctx, tenantID, session.ID, session.SellerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, listings)
}

// ResolveMissingModel creates a model under an existing make and
// reclassifies the session's matching missing-reference changes to creates
func ResolveMissingModel(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.ResolveMissingModel")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	sessionID := c.Param("id")

	var req models.ResolveMissingModelRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resolved, err := service.ResolveMissingReference(ctx, tenantID, sessionID, req)
	if err != nil {
		return err
	}

	if len(resolved) > 0 {
		if err := refreshSessionTotals(ctx, tenantID, sessionID); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"resolved_change_ids": resolved,
		"resolved_count":      len(resolved),
	})
}

// refreshSessionTotals recounts the change batch after reclassification
// so the stored summary stays truthful.
func refreshSessionTotals(ctx context.Context, tenantID, sessionID string) error {
	ctx, sessions, err := ectoinject.GetContext[*comparisonsession.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, changes, err := ectoinject.GetContext[*change.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	session, err := sessions.Get(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	counts, err := changes.CountByType(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}

	session.TotalNew = counts[models.ChangeTypeCreate]
	session.TotalUpdated = counts[models.ChangeTypeUpdate]
	session.TotalUnchanged = counts[models.ChangeTypeUnchanged]
	session.TotalDeleted = counts[models.ChangeTypeDelete]
	session.TotalMatched = session.TotalUpdated + session.TotalUnchanged
	return sessions.MarkCompleted(ctx, session)
}
