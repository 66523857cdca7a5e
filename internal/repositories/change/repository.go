package change

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var changeColumns = []string{
	"id", "tenant_id", "session_id", "change_type", "extracted_data", "listing_id",
	"field_changes", "match_method", "confidence_score", "status", "change_summary",
	"review_notes", "reviewed_at", "extraction_order", "created_at", "updated_at",
}

// Filter narrows change listings
type Filter struct {
	ChangeType models.ChangeType
	Status     models.ChangeStatus
}

// Repository handles listing change persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new change repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch persists a session's full change set in one statement
func (r *Repository) CreateBatch(ctx context.Context, changes []models.Change) error {
	ctx, span := tracing.StartSpan(ctx, "change.Repository.CreateBatch")
	defer span.End()

	if len(changes) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("listing_changes")
	sb.Cols(changeColumns...)

	for i := range changes {
		c := &changes[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.Status == "" {
			c.Status = models.ChangeStatusPending
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		sb.Values(
			c.ID, c.TenantID, c.SessionID, c.ChangeType, c.ExtractedData, c.ListingID,
			c.FieldChanges, c.MatchMethod, c.ConfidenceScore, c.Status, c.ChangeSummary,
			c.ReviewNotes, c.ReviewedAt, c.ExtractionOrder, c.CreatedAt, c.UpdatedAt,
		)
	}

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(changes)}).Error("Failed to create change batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create changes")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(changes)}).Debug("Created change batch")
	return nil
}

// Get retrieves a change by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Change, error) {
	ctx, span := tracing.StartSpan(ctx, "change.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(changeColumns...)
	sb.From("listing_changes")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var change models.Change
	if err := r.db.GetContext(ctx, &change, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("change %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get change")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get change")
	}

	return &change, nil
}

// GetByIDs retrieves a set of changes by ID. Missing ids are simply
// absent from the result; callers decide whether that is an error.
func (r *Repository) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]models.Change, error) {
	ctx, span := tracing.StartSpan(ctx, "change.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(changeColumns...)
	sb.From("listing_changes")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", sqlbuilder.List(ids)),
	)

	query, args := sb.Build()
	var changes []models.Change
	if err := r.db.SelectContext(ctx, &changes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get changes by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get changes")
	}

	return changes, nil
}

// ListBySession retrieves a session's changes ordered by change type
// then original extraction order. The ordering is stable across calls.
func (r *Repository) ListBySession(ctx context.Context, tenantID, sessionID string, filter Filter) ([]models.Change, error) {
	ctx, span := tracing.StartSpan(ctx, "change.Repository.ListBySession")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(changeColumns...)
	sb.From("listing_changes")

	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("session_id", sessionID),
	}
	if filter.ChangeType != "" {
		where = append(where, sb.Equal("change_type", filter.ChangeType))
	}
	if filter.Status != "" {
		where = append(where, sb.Equal("status", filter.Status))
	}
	sb.Where(where...)
	sb.OrderBy("change_type", "extraction_order")

	query, args := sb.Build()
	var changes []models.Change
	if err := r.db.SelectContext(ctx, &changes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": sessionID}).Error("Failed to list changes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list changes")
	}

	return changes, nil
}

// ListMissingReferences retrieves a session's pending missing-reference
// changes for the resolution flow
func (r *Repository) ListMissingReferences(ctx context.Context, tenantID, sessionID string) ([]models.Change, error) {
	return r.ListBySession(ctx, tenantID, sessionID, Filter{
		ChangeType: models.ChangeTypeMissingReference,
		Status:     models.ChangeStatusPending,
	})
}

// UpdateStatus writes a change's status, review notes and reviewed_at
func (r *Repository) UpdateStatus(ctx context.Context, change *models.Change) error {
	ctx, span := tracing.StartSpan(ctx, "change.Repository.UpdateStatus")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("listing_changes")
	ub.Set(
		ub.Assign("status", change.Status),
		ub.Assign("review_notes", change.ReviewNotes),
		ub.Assign("reviewed_at", change.ReviewedAt),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", change.ID),
		ub.Equal("tenant_id", change.TenantID),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"change_id": change.ID}).Error("Failed to update change status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update change status")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("change %s not found", change.ID))
	}

	return nil
}

// DiscardPending moves every pending change in the session that is not
// excluded to discarded, skipping missing-reference changes, which stay
// pending until resolved. Returns the number discarded.
func (r *Repository) DiscardPending(ctx context.Context, tenantID, sessionID string, excludeIDs []string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "change.Repository.DiscardPending")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("listing_changes")
	ub.Set(
		ub.Assign("status", models.ChangeStatusDiscarded),
		ub.Assign("reviewed_at", now),
		ub.Assign("updated_at", now),
	)

	where := []string{
		ub.Equal("tenant_id", tenantID),
		ub.Equal("session_id", sessionID),
		ub.Equal("status", models.ChangeStatusPending),
		ub.NotEqual("change_type", models.ChangeTypeMissingReference),
	}
	if len(excludeIDs) > 0 {
		where = append(where, ub.NotIn("id", sqlbuilder.List(excludeIDs)))
	}
	ub.Where(where...)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": sessionID}).Error("Failed to discard pending changes")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to discard pending changes")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(rows), nil
}

// ReclassifyToCreate rewrites a missing-reference change to a create
// change with a fresh summary. The only mutation of change_type after
// session build.
func (r *Repository) ReclassifyToCreate(ctx context.Context, tenantID, id, summary string) error {
	ctx, span := tracing.StartSpan(ctx, "change.Repository.ReclassifyToCreate")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("listing_changes")
	ub.Set(
		ub.Assign("change_type", models.ChangeTypeCreate),
		ub.Assign("change_summary", summary),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
		ub.Equal("change_type", models.ChangeTypeMissingReference),
		ub.Equal("status", models.ChangeStatusPending),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"change_id": id}).Error("Failed to reclassify change")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reclassify change")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("change %s is not a pending missing reference", id))
	}

	return nil
}

// CountByType returns the change-type counts for a session
func (r *Repository) CountByType(ctx context.Context, tenantID, sessionID string) (map[models.ChangeType]int, error) {
	ctx, span := tracing.StartSpan(ctx, "change.Repository.CountByType")
	defer span.End()

	query := `
		SELECT change_type, COUNT(*) AS count
		FROM listing_changes
		WHERE tenant_id = $1 AND session_id = $2
		GROUP BY change_type
	`

	rows, err := r.db.QueryxContext(ctx, query, tenantID, sessionID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": sessionID}).Error("Failed to count changes by type")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count changes")
	}
	defer rows.Close()

	counts := make(map[models.ChangeType]int)
	for rows.Next() {
		var changeType models.ChangeType
		var count int
		if err := rows.Scan(&changeType, &count); err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to scan change counts")
		}
		counts[changeType] = count
	}

	return counts, nil
}
