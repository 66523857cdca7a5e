package models

import (
	"encoding/json"
	"time"
)

type SessionStatus string

const (
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

type ExtractionType string

const (
	ExtractionTypeCreate ExtractionType = "create"
	ExtractionTypeUpdate ExtractionType = "update"
)

// SessionSummary is the aggregate change-type counts shown on the
// review dashboard.
type SessionSummary struct {
	TotalExtracted   int `json:"total_extracted"`
	TotalExisting    int `json:"total_existing"`
	TotalMatched     int `json:"total_matched"`
	TotalNew         int `json:"total_new"`
	TotalUpdated     int `json:"total_updated"`
	TotalUnchanged   int `json:"total_unchanged"`
	TotalDeleted     int `json:"total_deleted"`
	TotalMissingRefs int `json:"total_missing_refs"`
}

// ComparisonSession is one batch comparison of extracted candidates
// against a seller's stored listings.
type ComparisonSession struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	SellerID       string          `json:"seller_id" db:"seller_id"`
	Name           string          `json:"name" db:"name"`
	Status         SessionStatus   `json:"status" db:"status"`
	ExtractionType ExtractionType  `json:"extraction_type" db:"extraction_type"`
	SourceFile     *string         `json:"source_file,omitempty" db:"source_file"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	Error          *string         `json:"error,omitempty" db:"error"`

	TotalExtracted int `json:"total_extracted" db:"total_extracted"`
	TotalExisting  int `json:"total_existing" db:"total_existing"`
	TotalMatched   int `json:"total_matched" db:"total_matched"`
	TotalNew       int `json:"total_new" db:"total_new"`
	TotalUpdated   int `json:"total_updated" db:"total_updated"`
	TotalUnchanged int `json:"total_unchanged" db:"total_unchanged"`
	TotalDeleted   int `json:"total_deleted" db:"total_deleted"`

	AppliedAt *time.Time `json:"applied_at,omitempty" db:"applied_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type SessionListResponse struct {
	Items      []ComparisonSession `json:"items"`
	TotalCount int                 `json:"total_count"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
}

// ApplySelectedRequest names the changes to apply from a session.
// Everything pending and not selected is discarded in the same pass.
type ApplySelectedRequest struct {
	ChangeIDs []string `json:"change_ids" validate:"required,min=1,dive,uuid"`
}

// ResolveMissingModelRequest creates a reference model and reclassifies
// the session's missing-reference changes that were blocked on it.
type ResolveMissingModelRequest struct {
	MakeID    string `json:"make_id" validate:"required,uuid"`
	ModelName string `json:"model_name" validate:"required"`
}
