package comparison

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// UnmappedSource is the set-difference query over the backing store:
// listings for a seller not referenced by any update, delete or
// unchanged change in a session.
type UnmappedSource interface {
	FindUnmapped(ctx context.Context, tenantID, sessionID, sellerID string) ([]models.Listing, error)
}

// Detector surfaces listings a session's matcher never claimed, so a
// reviewer can decide whether they are genuinely discontinued.
type Detector struct {
	logger ectologger.Logger
	source UnmappedSource
}

// NewDetector creates a new unmapped-listing Detector
func NewDetector(logger ectologger.Logger, source UnmappedSource) *Detector {
	return &Detector{logger: logger, source: source}
}

// FindUnmapped is read-only; it never mutates session state.
func (d *Detector) FindUnmapped(ctx context.Context, tenantID, sessionID, sellerID string) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "comparison.Detector.FindUnmapped")
	defer span.End()

	listings, err := d.source.FindUnmapped(ctx, tenantID, sessionID, sellerID)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"session_id": sessionID,
			"seller_id":  sellerID,
		}).Error("Failed to find unmapped listings")
		return nil, err
	}

	if len(listings) > 0 {
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"session_id": sessionID,
			"count":      len(listings),
		}).Info("Found listings not covered by session")
	}

	return listings, nil
}
