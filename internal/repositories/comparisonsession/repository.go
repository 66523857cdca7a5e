package comparisonsession

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

var sessionColumns = []string{
	"id", "tenant_id", "seller_id", "name", "status", "extraction_type",
	"source_file", "metadata", "error", "total_extracted", "total_existing",
	"total_matched", "total_new", "total_updated", "total_unchanged", "total_deleted",
	"applied_at", "created_at", "updated_at",
}

// Repository handles comparison session persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new session repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a session in processing status
func (r *Repository) Create(ctx context.Context, session *models.ComparisonSession) error {
	ctx, span := tracing.StartSpan(ctx, "comparisonsession.Repository.Create")
	defer span.End()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusProcessing
	}
	session.CreatedAt = time.Now().UTC()
	session.UpdatedAt = session.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("comparison_sessions")
	sb.Cols(sessionColumns...)
	sb.Values(
		session.ID, session.TenantID, session.SellerID, session.Name, session.Status,
		session.ExtractionType, session.SourceFile, session.Metadata, session.Error,
		session.TotalExtracted, session.TotalExisting, session.TotalMatched,
		session.TotalNew, session.TotalUpdated, session.TotalUnchanged, session.TotalDeleted,
		session.AppliedAt, session.CreatedAt, session.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": session.ID}).Error("Failed to create comparison session")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create comparison session")
	}

	return nil
}

// Get retrieves a session by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.ComparisonSession, error) {
	ctx, span := tracing.StartSpan(ctx, "comparisonsession.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(sessionColumns...)
	sb.From("comparison_sessions")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var session models.ComparisonSession
	if err := r.db.GetContext(ctx, &session, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("comparison session %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get comparison session")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get comparison session")
	}

	return &session, nil
}

// List retrieves sessions for a tenant, newest first, optionally
// filtered by seller
func (r *Repository) List(ctx context.Context, tenantID, sellerID string, page, pageSize int) (*models.SessionListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "comparisonsession.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}

	where := func(b *sqlbuilder.SelectBuilder) {
		conds := []string{b.Equal("tenant_id", tenantID)}
		if sellerID != "" {
			conds = append(conds, b.Equal("seller_id", sellerID))
		}
		b.Where(conds...)
	}

	countBuilder := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("comparison_sessions")
	where(countBuilder)

	query, args := countBuilder.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count comparison sessions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list comparison sessions")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(sessionColumns...)
	sb.From("comparison_sessions")
	where(sb)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	var sessions []models.ComparisonSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list comparison sessions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list comparison sessions")
	}

	return &models.SessionListResponse{
		Items:      sessions,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// MarkCompleted writes the final summary counts and moves the session
// to completed
func (r *Repository) MarkCompleted(ctx context.Context, session *models.ComparisonSession) error {
	ctx, span := tracing.StartSpan(ctx, "comparisonsession.Repository.MarkCompleted")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("comparison_sessions")
	ub.Set(
		ub.Assign("status", models.SessionStatusCompleted),
		ub.Assign("total_existing", session.TotalExisting),
		ub.Assign("total_matched", session.TotalMatched),
		ub.Assign("total_new", session.TotalNew),
		ub.Assign("total_updated", session.TotalUpdated),
		ub.Assign("total_unchanged", session.TotalUnchanged),
		ub.Assign("total_deleted", session.TotalDeleted),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", session.ID),
		ub.Equal("tenant_id", session.TenantID),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": session.ID}).Error("Failed to complete comparison session")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete comparison session")
	}

	return nil
}

// MarkFailed records the failure reason and moves the session to failed
func (r *Repository) MarkFailed(ctx context.Context, tenantID, id, errMsg string) error {
	ctx, span := tracing.StartSpan(ctx, "comparisonsession.Repository.MarkFailed")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("comparison_sessions")
	ub.Set(
		ub.Assign("status", models.SessionStatusFailed),
		ub.Assign("error", errMsg),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": id}).Error("Failed to mark comparison session failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update comparison session")
	}

	return nil
}

// SetAppliedAt stamps the session once any of its changes has been
// committed. Idempotent; the first apply wins.
func (r *Repository) SetAppliedAt(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "comparisonsession.Repository.SetAppliedAt")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("comparison_sessions")
	ub.Set(
		ub.Assign("applied_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
		ub.IsNull("applied_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": id}).Error("Failed to stamp session applied_at")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update comparison session")
	}

	return nil
}
