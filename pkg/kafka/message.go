package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ExtractionMessage is one finished extraction batch published by the
// PDF pipeline. It carries everything needed to build a comparison
// session.
type ExtractionMessage struct {
	TenantID       string                     `json:"tenant_id"`
	SellerID       string                     `json:"seller_id"`
	SessionName    string                     `json:"session_name"`
	ExtractionType models.ExtractionType      `json:"extraction_type"`
	SourceFile     *string                    `json:"source_file,omitempty"`
	Vehicles       []models.ExtractedVehicle  `json:"vehicles"`
	Metadata       *models.ExtractionMetadata `json:"metadata,omitempty"`
	ExtractedAt    time.Time                  `json:"extracted_at"`
}

// Validate checks the message carries enough to build a session
func (m *ExtractionMessage) Validate() error {
	if m.TenantID == "" {
		return fmt.Errorf("extraction message missing tenant_id")
	}
	if m.SellerID == "" {
		return fmt.Errorf("extraction message missing seller_id")
	}
	if m.ExtractionType != models.ExtractionTypeCreate && m.ExtractionType != models.ExtractionTypeUpdate {
		return fmt.Errorf("extraction message has invalid extraction_type %q", m.ExtractionType)
	}
	return nil
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	Extraction *ExtractionMessage
}

// ParseExtractionMessage parses the message value as an extraction
// batch and validates it
func (m *IncomingMessage) ParseExtractionMessage() error {
	var msg ExtractionMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	m.Extraction = &msg
	return nil
}

// GetTenantID returns the tenant the message belongs to
func (m *IncomingMessage) GetTenantID() string {
	if m.Extraction != nil {
		return m.Extraction.TenantID
	}
	return m.Headers["tenant_id"]
}
