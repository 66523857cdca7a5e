package comparison

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ListingSource loads the seller's current listings for one batch.
type ListingSource interface {
	ListBySeller(ctx context.Context, tenantID, sellerID string) ([]models.Listing, error)
}

// TaxonomySource loads the reference-data snapshot used to resolve
// extracted names.
type TaxonomySource interface {
	LoadReferenceData(ctx context.Context, tenantID string) (*models.ReferenceData, error)
}

// SessionStore persists comparison sessions.
type SessionStore interface {
	Create(ctx context.Context, session *models.ComparisonSession) error
	MarkCompleted(ctx context.Context, session *models.ComparisonSession) error
	MarkFailed(ctx context.Context, tenantID, id, errMsg string) error
}

// ChangeWriter persists the change batch for a session.
type ChangeWriter interface {
	CreateBatch(ctx context.Context, changes []models.Change) error
}

// BuildRequest describes one comparison batch.
type BuildRequest struct {
	TenantID       string
	SellerID       string
	Name           string
	ExtractionType models.ExtractionType
	SourceFile     *string
	Metadata       json.RawMessage
	Candidates     []models.ExtractedVehicle
}

// Builder runs one full reconciliation pass and persists the result.
type Builder struct {
	logger     ectologger.Logger
	classifier *Classifier
	listings   ListingSource
	taxonomy   TaxonomySource
	sessions   SessionStore
	changes    ChangeWriter
}

// NewBuilder creates a new session Builder
func NewBuilder(
	logger ectologger.Logger,
	classifier *Classifier,
	listings ListingSource,
	taxonomy TaxonomySource,
	sessions SessionStore,
	changes ChangeWriter,
) *Builder {
	return &Builder{
		logger:     logger,
		classifier: classifier,
		listings:   listings,
		taxonomy:   taxonomy,
		sessions:   sessions,
		changes:    changes,
	}
}

// Build creates the session row, classifies the batch, and persists
// every resulting change. The session is created in processing status
// and moves to completed only once the full change batch is persisted;
// any interruption leaves it failed so callers never observe a partial
// batch as usable.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*models.ComparisonSession, error) {
	ctx, span := tracing.StartSpan(ctx, "comparison.Builder.Build")
	defer span.End()

	log := b.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  req.TenantID,
		"seller_id":  req.SellerID,
		"candidates": len(req.Candidates),
	})

	session := &models.ComparisonSession{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		SellerID:       req.SellerID,
		Name:           req.Name,
		Status:         models.SessionStatusProcessing,
		ExtractionType: req.ExtractionType,
		SourceFile:     req.SourceFile,
		Metadata:       req.Metadata,
		TotalExtracted: len(req.Candidates),
	}

	if err := b.sessions.Create(ctx, session); err != nil {
		log.WithError(err).Error("Failed to create comparison session")
		return nil, err
	}

	completed, err := b.process(ctx, session, req)
	if err != nil {
		log.WithError(err).WithFields(map[string]any{"session_id": session.ID}).Error("Session build failed")
		if markErr := b.sessions.MarkFailed(ctx, req.TenantID, session.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("Failed to mark session failed")
		}
		session.Status = models.SessionStatusFailed
		return session, err
	}

	log.WithFields(map[string]any{
		"session_id":    session.ID,
		"total_new":     completed.TotalNew,
		"total_updated": completed.TotalUpdated,
		"total_deleted": completed.TotalDeleted,
	}).Info("Comparison session completed")

	return completed, nil
}

func (b *Builder) process(ctx context.Context, session *models.ComparisonSession, req BuildRequest) (*models.ComparisonSession, error) {
	listings, err := b.listings.ListBySeller(ctx, req.TenantID, req.SellerID)
	if err != nil {
		return nil, err
	}

	ref, err := b.taxonomy.LoadReferenceData(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	changes, err := b.classifier.Classify(req.Candidates, listings, ref)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	for i := range changes {
		changes[i].ID = uuid.NewString()
		changes[i].TenantID = req.TenantID
		changes[i].SessionID = session.ID
	}

	if len(changes) > 0 {
		if err := b.changes.CreateBatch(ctx, changes); err != nil {
			return nil, err
		}
	}

	session.TotalExisting = len(listings)
	for _, change := range changes {
		switch change.ChangeType {
		case models.ChangeTypeCreate:
			session.TotalNew++
		case models.ChangeTypeUpdate:
			session.TotalUpdated++
			session.TotalMatched++
		case models.ChangeTypeUnchanged:
			session.TotalUnchanged++
			session.TotalMatched++
		case models.ChangeTypeDelete:
			session.TotalDeleted++
		}
	}

	session.Status = models.SessionStatusCompleted
	if err := b.sessions.MarkCompleted(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}
