package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ChangeType string

const (
	ChangeTypeCreate           ChangeType = "create"
	ChangeTypeUpdate           ChangeType = "update"
	ChangeTypeDelete           ChangeType = "delete"
	ChangeTypeUnchanged        ChangeType = "unchanged"
	ChangeTypeMissingReference ChangeType = "missing_reference"
)

type ChangeStatus string

const (
	ChangeStatusPending   ChangeStatus = "pending"
	ChangeStatusApproved  ChangeStatus = "approved"
	ChangeStatusRejected  ChangeStatus = "rejected"
	ChangeStatusApplied   ChangeStatus = "applied"
	ChangeStatusDiscarded ChangeStatus = "discarded"
)

type MatchMethod string

const (
	MatchMethodExact MatchMethod = "exact"
	MatchMethodFuzzy MatchMethod = "fuzzy"
	MatchMethodNone  MatchMethod = "none"
)

// OffersReplacementField is the synthetic field-change key used when a
// candidate's offer set differs from the stored set. Offers are replaced
// as a whole, never diffed offer-by-offer.
const OffersReplacementField = "offers_replacement"

// FieldChange records one before/after pair inside a change's diff.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// FieldChanges is the per-field diff of an update change, stored as a
// jsonb column.
type FieldChanges map[string]FieldChange

func (f FieldChanges) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

func (f *FieldChanges) Scan(src any) error {
	if src == nil {
		*f = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into FieldChanges", src)
	}
	return json.Unmarshal(data, f)
}

// Change is one reviewable unit of work inside a comparison session.
type Change struct {
	ID              string          `json:"id" db:"id"`
	TenantID        string          `json:"tenant_id" db:"tenant_id"`
	SessionID       string          `json:"session_id" db:"session_id"`
	ChangeType      ChangeType      `json:"change_type" db:"change_type"`
	ExtractedData   json.RawMessage `json:"extracted_data,omitempty" db:"extracted_data"`
	ListingID       *string         `json:"listing_id,omitempty" db:"listing_id"`
	FieldChanges    FieldChanges    `json:"field_changes,omitempty" db:"field_changes"`
	MatchMethod     MatchMethod     `json:"match_method" db:"match_method"`
	ConfidenceScore float64         `json:"confidence_score" db:"confidence_score"`
	Status          ChangeStatus    `json:"status" db:"status"`
	ChangeSummary   string          `json:"change_summary" db:"change_summary"`
	ReviewNotes     *string         `json:"review_notes,omitempty" db:"review_notes"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ExtractionOrder int             `json:"extraction_order" db:"extraction_order"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Candidate returns the extracted vehicle carried by the change, when
// one is present. Delete changes carry none.
func (c *Change) Candidate() (*ExtractedVehicle, error) {
	if len(c.ExtractedData) == 0 {
		return nil, nil
	}
	var v ExtractedVehicle
	if err := json.Unmarshal(c.ExtractedData, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extracted data: %w", err)
	}
	return &v, nil
}

var changeTransitions = map[ChangeStatus][]ChangeStatus{
	ChangeStatusPending:  {ChangeStatusApproved, ChangeStatusRejected, ChangeStatusApplied, ChangeStatusDiscarded},
	ChangeStatusApproved: {ChangeStatusApplied, ChangeStatusDiscarded},
	ChangeStatusRejected: {ChangeStatusDiscarded},
}

// CanTransition reports whether a change may move from its current
// status to the target. Applied and discarded are terminal.
func (c *Change) CanTransition(to ChangeStatus) bool {
	for _, allowed := range changeTransitions[c.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Reviewable reports whether the change participates in the review
// workflow at all. Missing-reference changes are frozen until their
// reference is resolved.
func (c *Change) Reviewable() bool {
	return c.ChangeType != ChangeTypeMissingReference
}

// ApplyFailure records one change that could not be applied.
type ApplyFailure struct {
	ChangeID string `json:"change_id"`
	Error    string `json:"error"`
}

// ApplyResult summarizes an apply pass over a session.
type ApplyResult struct {
	SessionID      string         `json:"session_id"`
	AppliedCount   int            `json:"applied_count"`
	DiscardedCount int            `json:"discarded_count"`
	SkippedCount   int            `json:"skipped_count"`
	Failures       []ApplyFailure `json:"failures,omitempty"`
}

type ChangeListResponse struct {
	Items      []Change `json:"items"`
	TotalCount int      `json:"total_count"`
}

// UpdateChangeStatusRequest is the review payload for a single change.
type UpdateChangeStatusRequest struct {
	Status      ChangeStatus `json:"status" validate:"required,oneof=approved rejected applied discarded"`
	ReviewNotes *string      `json:"review_notes,omitempty"`
}
