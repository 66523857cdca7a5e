// Package review implements the change status state machine and the
// missing-reference resolution flow.
package review

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/comparison"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ChangeStore is the persistence surface the review workflow needs.
type ChangeStore interface {
	Get(ctx context.Context, tenantID, id string) (*models.Change, error)
	UpdateStatus(ctx context.Context, change *models.Change) error
	ListMissingReferences(ctx context.Context, tenantID, sessionID string) ([]models.Change, error)
	ReclassifyToCreate(ctx context.Context, tenantID, id, summary string) error
}

// TaxonomyStore creates the reference rows missing-reference changes
// are blocked on.
type TaxonomyStore interface {
	GetMake(ctx context.Context, tenantID, id string) (*models.Make, error)
	CreateModel(ctx context.Context, model *models.CarModel) error
}

// Service drives reviewer actions on individual changes.
type Service struct {
	logger   ectologger.Logger
	changes  ChangeStore
	taxonomy TaxonomyStore
}

// NewService creates a new review Service
func NewService(logger ectologger.Logger, changes ChangeStore, taxonomy TaxonomyStore) *Service {
	return &Service{
		logger:   logger,
		changes:  changes,
		taxonomy: taxonomy,
	}
}

// SetStatus transitions one change through the review state machine.
// Invalid transitions are rejected without mutation. Missing-reference
// changes cannot transition at all until they are reclassified.
func (s *Service) SetStatus(ctx context.Context, tenantID, changeID string, req models.UpdateChangeStatusRequest) (*models.Change, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.SetStatus")
	defer span.End()

	change, err := s.changes.Get(ctx, tenantID, changeID)
	if err != nil {
		return nil, err
	}

	if !change.Reviewable() {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict,
			"change %s has a missing reference and cannot be reviewed until it is resolved", changeID)
	}

	if !change.CanTransition(req.Status) {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict,
			"change %s cannot transition from %s to %s", changeID, change.Status, req.Status)
	}

	now := time.Now().UTC()
	change.Status = req.Status
	change.ReviewedAt = &now
	if req.ReviewNotes != nil {
		change.ReviewNotes = req.ReviewNotes
	}

	if err := s.changes.UpdateStatus(ctx, change); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_id": changeID,
			"status":    req.Status,
		}).Error("Failed to update change status")
		return nil, err
	}

	return change, nil
}

// ResolveMissingReference registers a model under a make, then rewrites
// every pending missing-reference change in the session whose extracted
// make and model match it (case-insensitive) to a create change. This
// is the only operation that mutates change_type after session build.
// Returns the ids of the reclassified changes.
func (s *Service) ResolveMissingReference(ctx context.Context, tenantID, sessionID string, req models.ResolveMissingModelRequest) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.ResolveMissingReference")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id": sessionID,
		"make_id":    req.MakeID,
		"model_name": req.ModelName,
	})

	mk, err := s.taxonomy.GetMake(ctx, tenantID, req.MakeID)
	if err != nil {
		return nil, err
	}

	model := &models.CarModel{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		MakeID:   mk.ID,
		Name:     strings.TrimSpace(req.ModelName),
	}
	if err := s.taxonomy.CreateModel(ctx, model); err != nil {
		return nil, err
	}

	pending, err := s.changes.ListMissingReferences(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	var affected []string
	for i := range pending {
		change := &pending[i]
		candidate, err := change.Candidate()
		if err != nil || candidate == nil {
			log.WithError(err).WithFields(map[string]any{"change_id": change.ID}).Warn("Skipping unreadable missing-reference change")
			continue
		}

		if !equalsFold(candidate.Make, mk.Name) || !equalsFold(candidate.Model, model.Name) {
			continue
		}

		summary := comparison.CreateSummary(candidate)
		if err := s.changes.ReclassifyToCreate(ctx, tenantID, change.ID, summary); err != nil {
			return affected, fmt.Errorf("failed to reclassify change %s: %w", change.ID, err)
		}
		affected = append(affected, change.ID)
	}

	log.WithFields(map[string]any{"reclassified": len(affected)}).Info("Resolved missing model reference")

	return affected, nil
}

func equalsFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
