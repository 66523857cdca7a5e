// Package processor wires the extraction pipeline into session builds.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/comparison"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SessionNotifier announces sessions that are ready for review
type SessionNotifier interface {
	SessionCompleted(ctx context.Context, session *models.ComparisonSession)
}

// Processor turns extraction batches into comparison sessions
type Processor struct {
	logger   ectologger.Logger
	builder  *comparison.Builder
	notifier SessionNotifier
}

// NewProcessor creates a new extraction processor. notifier may be nil.
func NewProcessor(logger ectologger.Logger, builder *comparison.Builder, notifier SessionNotifier) *Processor {
	return &Processor{
		logger:   logger,
		builder:  builder,
		notifier: notifier,
	}
}

// HandleMessage builds a comparison session from one extraction batch.
// Returning an error leaves the message uncommitted for redelivery.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	if msg.Extraction == nil {
		return fmt.Errorf("message carries no extraction payload")
	}
	extraction := msg.Extraction

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": extraction.TenantID,
		"seller_id": extraction.SellerID,
		"vehicles":  len(extraction.Vehicles),
	})

	var metadata json.RawMessage
	if extraction.Metadata != nil {
		var err error
		metadata, err = json.Marshal(extraction.Metadata)
		if err != nil {
			log.WithError(err).Warn("Dropping unreadable extraction metadata")
			metadata = nil
		}
	}

	name := extraction.SessionName
	if name == "" {
		name = fmt.Sprintf("Extraction %s", time.Now().UTC().Format("2006-01-02 15:04"))
	}

	session, err := p.builder.Build(ctx, comparison.BuildRequest{
		TenantID:       extraction.TenantID,
		SellerID:       extraction.SellerID,
		Name:           name,
		ExtractionType: extraction.ExtractionType,
		SourceFile:     extraction.SourceFile,
		Metadata:       metadata,
		Candidates:     extraction.Vehicles,
	})
	if err != nil {
		// The builder already marked the session failed; a redelivery
		// would build a fresh session, so commit by returning nil only
		// when the failure is permanent. Build errors here are store
		// errors, which are worth retrying.
		return err
	}

	if p.notifier != nil {
		p.notifier.SessionCompleted(ctx, session)
	}

	log.WithFields(map[string]any{"session_id": session.ID}).Info("Built comparison session from extraction batch")
	return nil
}
