// Package events publishes listing and session lifecycle events for
// downstream consumers.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ListingGetter loads a listing for projection after an update
type ListingGetter interface {
	Get(ctx context.Context, tenantID, id string) (*models.Listing, error)
}

// Emitter fans committed changes out to Kafka and the graph projection.
// Everything here is best-effort: the Postgres write already happened,
// so failures are logged and swallowed.
type Emitter struct {
	logger   ectologger.Logger
	producer *kafka.Producer
	catalog  *graph.Catalog // nil when the graph projection is disabled
	listings ListingGetter
}

// NewEmitter creates a new event emitter. catalog may be nil.
func NewEmitter(logger ectologger.Logger, producer *kafka.Producer, catalog *graph.Catalog, listings ListingGetter) *Emitter {
	return &Emitter{
		logger:   logger,
		producer: producer,
		catalog:  catalog,
		listings: listings,
	}
}

// ListingCreated publishes listing.created and projects the new node
func (e *Emitter) ListingCreated(ctx context.Context, listing *models.Listing) {
	data, err := json.Marshal(listing)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to marshal listing for event")
	}

	e.publish(ctx, &kafka.ListingEvent{
		EventType: "listing.created",
		TenantID:  listing.TenantID,
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		Data:      data,
	})

	if e.catalog != nil {
		if err := e.catalog.UpsertListing(ctx, listing); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listing.ID}).Warn("Failed to project listing to graph")
		}
	}
}

// ListingUpdated publishes listing.updated and refreshes the projection
func (e *Emitter) ListingUpdated(ctx context.Context, tenantID, listingID string) {
	e.publish(ctx, &kafka.ListingEvent{
		EventType: "listing.updated",
		TenantID:  tenantID,
		ListingID: listingID,
	})

	if e.catalog == nil {
		return
	}
	listing, err := e.listings.Get(ctx, tenantID, listingID)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listingID}).Warn("Failed to load listing for graph projection")
		return
	}
	if err := e.catalog.UpsertListing(ctx, listing); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listingID}).Warn("Failed to project listing to graph")
	}
}

// ListingDeleted publishes listing.deleted and removes the node
func (e *Emitter) ListingDeleted(ctx context.Context, tenantID, listingID string) {
	e.publish(ctx, &kafka.ListingEvent{
		EventType: "listing.deleted",
		TenantID:  tenantID,
		ListingID: listingID,
	})

	if e.catalog != nil {
		if err := e.catalog.RemoveListing(ctx, tenantID, listingID); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listingID}).Warn("Failed to remove listing from graph")
		}
	}
}

// SessionCompleted publishes session.completed once a batch is built
// and ready for review
func (e *Emitter) SessionCompleted(ctx context.Context, session *models.ComparisonSession) {
	event := &kafka.SessionEvent{
		EventType: "session.completed",
		TenantID:  session.TenantID,
		SessionID: session.ID,
		SellerID:  session.SellerID,
	}
	if err := e.producer.PublishSessionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": session.ID}).Warn("Failed to publish session event")
	}
}

// SessionApplied publishes session.applied with the apply tallies
func (e *Emitter) SessionApplied(ctx context.Context, session *models.ComparisonSession, result *models.ApplyResult) {
	event := &kafka.SessionEvent{
		EventType:      "session.applied",
		TenantID:       session.TenantID,
		SessionID:      session.ID,
		SellerID:       session.SellerID,
		AppliedCount:   result.AppliedCount,
		DiscardedCount: result.DiscardedCount,
		FailureCount:   len(result.Failures),
	}
	if err := e.producer.PublishSessionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": session.ID}).Warn("Failed to publish session event")
	}
}

func (e *Emitter) publish(ctx context.Context, event *kafka.ListingEvent) {
	if err := e.producer.PublishListingEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"listing_id": event.ListingID,
		}).Warn("Failed to publish listing event")
	}
}
