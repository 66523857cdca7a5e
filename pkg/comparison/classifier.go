package comparison

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Classifier turns matched candidate/listing pairs into typed changes.
// It owns conflict resolution: when several candidates match the same
// listing, only the strongest claim survives.
type Classifier struct {
	logger  ectologger.Logger
	matcher *matching.Engine
	differ  *Differ
}

// NewClassifier creates a new Classifier
func NewClassifier(logger ectologger.Logger, matcher *matching.Engine) *Classifier {
	return &Classifier{
		logger:  logger,
		matcher: matcher,
		differ:  NewDiffer(),
	}
}

type candidateMatch struct {
	candidate *models.ExtractedVehicle
	order     int
	result    matching.Result
}

// Classify runs the matcher over every candidate, resolves match
// conflicts, and produces the full change set for the batch, including
// delete changes for listings no candidate claimed. The result is
// deterministic for a given input snapshot.
func (c *Classifier) Classify(candidates []models.ExtractedVehicle, listings []models.Listing, ref *models.ReferenceData) ([]models.Change, error) {
	matches := make([]candidateMatch, len(candidates))
	for i := range candidates {
		matches[i] = candidateMatch{
			candidate: &candidates[i],
			order:     i,
			result:    c.matcher.Match(&candidates[i], listings),
		}
	}

	c.resolveConflicts(matches)

	changes := make([]models.Change, 0, len(candidates))
	claimed := make(map[string]bool, len(listings))

	for _, m := range matches {
		change, err := c.classifyCandidate(m, ref)
		if err != nil {
			return nil, err
		}
		if m.result.Listing != nil {
			claimed[m.result.Listing.ID] = true
		}
		changes = append(changes, change)
	}

	// Listings no surviving candidate claimed are gone from the source
	// document and become delete changes.
	for i := range listings {
		l := &listings[i]
		if claimed[l.ID] {
			continue
		}
		listingID := l.ID
		changes = append(changes, models.Change{
			ChangeType:      models.ChangeTypeDelete,
			ListingID:       &listingID,
			MatchMethod:     models.MatchMethodNone,
			ConfidenceScore: 0,
			Status:          models.ChangeStatusPending,
			ChangeSummary:   fmt.Sprintf("Remove listing: %s", listingLabel(l)),
			ExtractionOrder: len(candidates) + i,
		})
	}

	return changes, nil
}

// resolveConflicts enforces that at most one candidate claims each
// listing. The highest confidence wins; equal confidence falls back to
// extraction order. Losers are demoted to unmatched.
func (c *Classifier) resolveConflicts(matches []candidateMatch) {
	winners := make(map[string]int) // listing id -> index into matches

	for i := range matches {
		m := &matches[i]
		if m.result.Listing == nil {
			continue
		}
		listingID := m.result.Listing.ID

		w, ok := winners[listingID]
		if !ok {
			winners[listingID] = i
			continue
		}

		loser := i
		if m.result.Confidence > matches[w].result.Confidence {
			loser = w
			winners[listingID] = i
		}

		c.logger.WithFields(map[string]any{
			"listing_id":       listingID,
			"kept_order":       matches[winners[listingID]].order,
			"demoted_order":    matches[loser].order,
			"kept_confidence":  matches[winners[listingID]].result.Confidence,
		}).Warn("Multiple candidates matched the same listing; demoting weaker match")

		matches[loser].result = matching.Result{Method: models.MatchMethodNone, Confidence: 0}
	}
}

func (c *Classifier) classifyCandidate(m candidateMatch, ref *models.ReferenceData) (models.Change, error) {
	snapshot, err := json.Marshal(m.candidate)
	if err != nil {
		return models.Change{}, fmt.Errorf("failed to snapshot candidate: %w", err)
	}

	change := models.Change{
		ExtractedData:   snapshot,
		MatchMethod:     m.result.Method,
		ConfidenceScore: m.result.Confidence,
		Status:          models.ChangeStatusPending,
		ExtractionOrder: m.order,
	}

	if m.result.Listing != nil {
		listingID := m.result.Listing.ID
		change.ListingID = &listingID

		diff := c.differ.Diff(m.candidate, m.result.Listing, ref)
		if len(diff) == 0 {
			change.ChangeType = models.ChangeTypeUnchanged
			change.ChangeSummary = fmt.Sprintf("No changes: %s", candidateLabel(m.candidate))
			return change, nil
		}

		change.ChangeType = models.ChangeTypeUpdate
		change.FieldChanges = diff
		change.ChangeSummary = UpdateSummary(m.candidate, diff)
		return change, nil
	}

	// Unmatched: a create, unless the taxonomy cannot place it.
	if reason, ok := c.checkReferences(m.candidate, ref); !ok {
		change.ChangeType = models.ChangeTypeMissingReference
		change.ChangeSummary = reason
		return change, nil
	}

	change.ChangeType = models.ChangeTypeCreate
	change.ChangeSummary = CreateSummary(m.candidate)
	return change, nil
}

// checkReferences verifies the candidate's make and model resolve
// against the taxonomy. Body, fuel and transmission lookups degrade to
// absent instead of blocking the change.
func (c *Classifier) checkReferences(candidate *models.ExtractedVehicle, ref *models.ReferenceData) (string, bool) {
	mk, ok := ref.ResolveMake(candidate.Make)
	if !ok {
		return fmt.Sprintf("Unknown make: %s", strings.TrimSpace(candidate.Make)), false
	}
	if _, ok := ref.ResolveModel(mk.ID, candidate.Model); !ok {
		return fmt.Sprintf("Unknown model: %s under %s", strings.TrimSpace(candidate.Model), mk.Name), false
	}
	return "", true
}

// CreateSummary is the display summary for a create change. Shared with
// the missing-reference resolution flow, which rewrites summaries when
// it reclassifies changes.
func CreateSummary(candidate *models.ExtractedVehicle) string {
	return fmt.Sprintf("New listing: %s", candidateLabel(candidate))
}

// UpdateSummary is the display summary for an update change
func UpdateSummary(candidate *models.ExtractedVehicle, diff models.FieldChanges) string {
	fields := len(diff)
	noun := "fields"
	if fields == 1 {
		noun = "field"
	}
	return fmt.Sprintf("Update listing: %s (%d %s)", candidateLabel(candidate), fields, noun)
}

func candidateLabel(candidate *models.ExtractedVehicle) string {
	parts := []string{candidate.Make, candidate.Model}
	if strings.TrimSpace(candidate.Variant) != "" {
		parts = append(parts, candidate.Variant)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, " ")
}

func listingLabel(l *models.Listing) string {
	parts := []string{l.MakeName, l.ModelName}
	if strings.TrimSpace(l.Variant) != "" {
		parts = append(parts, l.Variant)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, " ")
}
