// Package apply commits reviewer-selected changes against the listing
// store.
package apply

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ChangeSource reads and transitions the changes being applied.
type ChangeSource interface {
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]models.Change, error)
	UpdateStatus(ctx context.Context, change *models.Change) error
	DiscardPending(ctx context.Context, tenantID, sessionID string, excludeIDs []string) (int, error)
}

// ListingWriter is the store surface for committing changes.
type ListingWriter interface {
	Create(ctx context.Context, listing *models.Listing) error
	UpdateFields(ctx context.Context, tenantID, id string, fields map[string]any) error
	ReplaceOffers(ctx context.Context, tenantID, listingID string, offers []models.LeaseOffer) error
	SoftDelete(ctx context.Context, tenantID, id string) error
}

// SessionSource reads the session being applied and stamps applied_at.
type SessionSource interface {
	Get(ctx context.Context, tenantID, id string) (*models.ComparisonSession, error)
	SetAppliedAt(ctx context.Context, tenantID, id string) error
}

// TaxonomySource resolves extracted names to reference ids when
// materializing create changes.
type TaxonomySource interface {
	LoadReferenceData(ctx context.Context, tenantID string) (*models.ReferenceData, error)
}

// Notifier receives post-commit notifications for downstream consumers.
// Failures are logged, never propagated: the store write already
// happened.
type Notifier interface {
	ListingCreated(ctx context.Context, listing *models.Listing)
	ListingUpdated(ctx context.Context, tenantID, listingID string)
	ListingDeleted(ctx context.Context, tenantID, listingID string)
	SessionApplied(ctx context.Context, session *models.ComparisonSession, result *models.ApplyResult)
}

// Engine applies a selected subset of a session's pending changes and
// discards the rest.
type Engine struct {
	logger   ectologger.Logger
	changes  ChangeSource
	listings ListingWriter
	sessions SessionSource
	taxonomy TaxonomySource
	notifier Notifier
}

// NewEngine creates a new apply Engine. notifier may be nil.
func NewEngine(
	logger ectologger.Logger,
	changes ChangeSource,
	listings ListingWriter,
	sessions SessionSource,
	taxonomy TaxonomySource,
	notifier Notifier,
) *Engine {
	return &Engine{
		logger:   logger,
		changes:  changes,
		listings: listings,
		sessions: sessions,
		taxonomy: taxonomy,
		notifier: notifier,
	}
}

// ApplySelected commits every selected pending change and then discards
// everything else still pending in the session. Per-change store
// failures are recorded in the result and do not abort the batch; there
// is no whole-session rollback. Missing-reference and unchanged changes
// are never accepted; selecting one is a caller error reported as a
// failure and skipped. Cancellation between changes stops the batch
// and skips the discard pass; already-committed changes stay
// committed.
func (e *Engine) ApplySelected(ctx context.Context, tenantID, sessionID string, changeIDs []string) (*models.ApplyResult, error) {
	ctx, span := tracing.StartSpan(ctx, "apply.Engine.ApplySelected")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id": sessionID,
		"selected":   len(changeIDs),
	})

	if len(changeIDs) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "no changes selected")
	}

	session, err := e.sessions.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	selected, err := e.changes.GetByIDs(ctx, tenantID, changeIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Change, len(selected))
	for i := range selected {
		byID[selected[i].ID] = &selected[i]
	}

	var ref *models.ReferenceData

	result := &models.ApplyResult{SessionID: sessionID}

	for _, id := range changeIDs {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("Apply cancelled mid-batch; discard pass skipped")
			return result, err
		}

		change, ok := byID[id]
		if !ok {
			result.Failures = append(result.Failures, models.ApplyFailure{ChangeID: id, Error: "change not found in session"})
			continue
		}
		if change.SessionID != sessionID {
			result.Failures = append(result.Failures, models.ApplyFailure{ChangeID: id, Error: "change belongs to a different session"})
			continue
		}
		if change.ChangeType == models.ChangeTypeUnchanged || change.ChangeType == models.ChangeTypeMissingReference {
			log.WithFields(map[string]any{"change_id": id, "change_type": change.ChangeType}).Warn("Selected change is not applyable; skipping")
			result.Failures = append(result.Failures, models.ApplyFailure{ChangeID: id, Error: "change type " + string(change.ChangeType) + " cannot be applied"})
			result.SkippedCount++
			continue
		}
		if !change.CanTransition(models.ChangeStatusApplied) {
			log.WithFields(map[string]any{"change_id": id, "status": change.Status}).Warn("Selected change is not pending; skipping")
			result.SkippedCount++
			continue
		}

		if ref == nil && (change.ChangeType == models.ChangeTypeCreate || change.ChangeType == models.ChangeTypeUpdate) {
			ref, err = e.taxonomy.LoadReferenceData(ctx, tenantID)
			if err != nil {
				return result, err
			}
		}

		if err := e.applyOne(ctx, session, change, ref); err != nil {
			log.WithError(err).WithFields(map[string]any{"change_id": id}).Error("Failed to apply change")
			result.Failures = append(result.Failures, models.ApplyFailure{ChangeID: id, Error: err.Error()})
			continue
		}

		now := time.Now().UTC()
		change.Status = models.ChangeStatusApplied
		change.ReviewedAt = &now
		if err := e.changes.UpdateStatus(ctx, change); err != nil {
			// The store write succeeded; losing the status update is
			// reported but the entity change stands.
			log.WithError(err).WithFields(map[string]any{"change_id": id}).Error("Applied change but failed to record status")
			result.Failures = append(result.Failures, models.ApplyFailure{ChangeID: id, Error: "applied but status not recorded: " + err.Error()})
			continue
		}

		result.AppliedCount++
	}

	// The discard pass runs only after every selected change was
	// attempted. The reviewer's selection is exclusive: anything left
	// pending was not chosen and is abandoned.
	discarded, err := e.changes.DiscardPending(ctx, tenantID, sessionID, changeIDs)
	if err != nil {
		log.WithError(err).Error("Failed to discard remaining pending changes")
		return result, err
	}
	result.DiscardedCount = discarded

	if result.AppliedCount > 0 {
		if err := e.sessions.SetAppliedAt(ctx, tenantID, sessionID); err != nil {
			log.WithError(err).Error("Failed to stamp session applied_at")
		}
		if e.notifier != nil {
			e.notifier.SessionApplied(ctx, session, result)
		}
	}

	log.WithFields(map[string]any{
		"applied":   result.AppliedCount,
		"discarded": result.DiscardedCount,
		"skipped":   result.SkippedCount,
		"failures":  len(result.Failures),
	}).Info("Apply pass finished")

	return result, nil
}

func (e *Engine) applyOne(ctx context.Context, session *models.ComparisonSession, change *models.Change, ref *models.ReferenceData) error {
	switch change.ChangeType {
	case models.ChangeTypeCreate:
		return e.applyCreate(ctx, session, change, ref)
	case models.ChangeTypeUpdate:
		return e.applyUpdate(ctx, change, ref)
	case models.ChangeTypeDelete:
		return e.applyDelete(ctx, change)
	default:
		return httperror.NewHTTPErrorf(http.StatusConflict, "change type %s cannot be applied", change.ChangeType)
	}
}

func (e *Engine) applyCreate(ctx context.Context, session *models.ComparisonSession, change *models.Change, ref *models.ReferenceData) error {
	candidate, err := change.Candidate()
	if err != nil {
		return err
	}
	if candidate == nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "create change carries no extracted data")
	}

	listing, err := materializeListing(session, candidate, ref)
	if err != nil {
		return err
	}

	if err := e.listings.Create(ctx, listing); err != nil {
		return err
	}

	if e.notifier != nil {
		e.notifier.ListingCreated(ctx, listing)
	}
	return nil
}

func (e *Engine) applyUpdate(ctx context.Context, change *models.Change, ref *models.ReferenceData) error {
	if change.ListingID == nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "update change has no listing reference")
	}
	candidate, err := change.Candidate()
	if err != nil {
		return err
	}
	if candidate == nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "update change carries no extracted data")
	}

	fields, replaceOffers := updateFields(change.FieldChanges, candidate, ref)

	if len(fields) > 0 {
		if err := e.listings.UpdateFields(ctx, change.TenantID, *change.ListingID, fields); err != nil {
			return err
		}
	}

	if replaceOffers {
		offers := make([]models.LeaseOffer, len(candidate.Offers))
		for i, o := range candidate.Offers {
			offers[i] = models.LeaseOffer{
				ID:             uuid.NewString(),
				ListingID:      *change.ListingID,
				MonthlyPrice:   o.MonthlyPrice,
				FirstPayment:   o.FirstPayment,
				PeriodMonths:   o.PeriodMonths,
				MileagePerYear: o.MileagePerYear,
				TotalPrice:     o.TotalPrice,
			}
		}
		if err := e.listings.ReplaceOffers(ctx, change.TenantID, *change.ListingID, offers); err != nil {
			return err
		}
	}

	if e.notifier != nil {
		e.notifier.ListingUpdated(ctx, change.TenantID, *change.ListingID)
	}
	return nil
}

func (e *Engine) applyDelete(ctx context.Context, change *models.Change) error {
	if change.ListingID == nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "delete change has no listing reference")
	}
	if err := e.listings.SoftDelete(ctx, change.TenantID, *change.ListingID); err != nil {
		return err
	}
	if e.notifier != nil {
		e.notifier.ListingDeleted(ctx, change.TenantID, *change.ListingID)
	}
	return nil
}

// updateFields maps the recorded field diff back onto store columns,
// taking new values from the candidate snapshot. Lookup fields resolve
// to reference ids; unresolvable names clear the column. Offers are
// signalled separately since they replace wholesale.
func updateFields(diff models.FieldChanges, candidate *models.ExtractedVehicle, ref *models.ReferenceData) (map[string]any, bool) {
	fields := make(map[string]any, len(diff))
	replaceOffers := false

	for field := range diff {
		switch field {
		case models.OffersReplacementField:
			replaceOffers = true
		case "variant":
			fields["variant"] = strings.TrimSpace(candidate.Variant)
		case "horsepower":
			fields["horsepower"] = candidate.Horsepower
		case "seats":
			fields["seats"] = candidate.Seats
		case "doors":
			fields["doors"] = candidate.Doors
		case "year":
			fields["year"] = candidate.Year
		case "mileage":
			fields["mileage"] = candidate.Mileage
		case "co2_emission":
			fields["co2_emission"] = candidate.CO2Emission
		case "wltp_km_per_unit":
			fields["wltp_km_per_unit"] = candidate.WltpKmPerUnit
		case "fuel_type":
			var id *string
			if ft, ok := ref.ResolveFuelType(candidate.FuelType); ok {
				id = &ft.ID
			}
			fields["fuel_type_id"] = id
		case "transmission":
			var id *string
			if tr, ok := ref.ResolveTransmission(candidate.Transmission); ok {
				id = &tr.ID
			}
			fields["transmission_id"] = id
		case "body_type":
			var id *string
			if bt, ok := ref.ResolveBodyType(candidate.BodyType); ok {
				id = &bt.ID
			}
			fields["body_type_id"] = id
		}
	}

	return fields, replaceOffers
}

// materializeListing builds a store row from an extracted candidate.
// Make and model must resolve; the optional lookups degrade to null.
func materializeListing(session *models.ComparisonSession, candidate *models.ExtractedVehicle, ref *models.ReferenceData) (*models.Listing, error) {
	mk, ok := ref.ResolveMake(candidate.Make)
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "make %q is not in the taxonomy", candidate.Make)
	}
	model, ok := ref.ResolveModel(mk.ID, candidate.Model)
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "model %q is not registered under %s", candidate.Model, mk.Name)
	}

	listing := &models.Listing{
		ID:            uuid.NewString(),
		TenantID:      session.TenantID,
		SellerID:      session.SellerID,
		MakeID:        mk.ID,
		ModelID:       model.ID,
		MakeName:      mk.Name,
		ModelName:     model.Name,
		Variant:       strings.TrimSpace(candidate.Variant),
		Horsepower:    candidate.Horsepower,
		Seats:         candidate.Seats,
		Doors:         candidate.Doors,
		Year:          candidate.Year,
		Mileage:       candidate.Mileage,
		WltpKmPerUnit: candidate.WltpKmPerUnit,
		CO2Emission:   candidate.CO2Emission,
	}

	if ft, ok := ref.ResolveFuelType(candidate.FuelType); ok {
		listing.FuelTypeID = &ft.ID
	}
	if tr, ok := ref.ResolveTransmission(candidate.Transmission); ok {
		listing.TransmissionID = &tr.ID
	}
	if bt, ok := ref.ResolveBodyType(candidate.BodyType); ok {
		listing.BodyTypeID = &bt.ID
	}

	for _, o := range candidate.Offers {
		listing.Offers = append(listing.Offers, models.LeaseOffer{
			ID:             uuid.NewString(),
			ListingID:      listing.ID,
			MonthlyPrice:   o.MonthlyPrice,
			FirstPayment:   o.FirstPayment,
			PeriodMonths:   o.PeriodMonths,
			MileagePerYear: o.MileagePerYear,
			TotalPrice:     o.TotalPrice,
		})
	}

	return listing, nil
}
