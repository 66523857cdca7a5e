package apply

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeChangeSource struct {
	changes        map[string]*models.Change
	discardedCount int
	discardCalled  bool
	excludedIDs    []string
}

func (f *fakeChangeSource) GetByIDs(_ context.Context, _ string, ids []string) ([]models.Change, error) {
	var out []models.Change
	for _, id := range ids {
		if c, ok := f.changes[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeChangeSource) UpdateStatus(_ context.Context, change *models.Change) error {
	f.changes[change.ID] = change
	return nil
}

func (f *fakeChangeSource) DiscardPending(_ context.Context, _, sessionID string, excludeIDs []string) (int, error) {
	f.discardCalled = true
	f.excludedIDs = excludeIDs

	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	count := 0
	for _, c := range f.changes {
		if c.SessionID != sessionID || excluded[c.ID] {
			continue
		}
		if c.Status == models.ChangeStatusPending && c.ChangeType != models.ChangeTypeMissingReference {
			c.Status = models.ChangeStatusDiscarded
			count++
		}
	}
	f.discardedCount = count
	return count, nil
}

type fakeListingWriter struct {
	created    []*models.Listing
	updated    map[string]map[string]any
	replaced   map[string][]models.LeaseOffer
	deleted    []string
	failCreate error
	failDelete error
}

func newFakeListingWriter() *fakeListingWriter {
	return &fakeListingWriter{
		updated:  make(map[string]map[string]any),
		replaced: make(map[string][]models.LeaseOffer),
	}
}

func (f *fakeListingWriter) Create(_ context.Context, listing *models.Listing) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	f.created = append(f.created, listing)
	return nil
}

func (f *fakeListingWriter) UpdateFields(_ context.Context, _, id string, fields map[string]any) error {
	f.updated[id] = fields
	return nil
}

func (f *fakeListingWriter) ReplaceOffers(_ context.Context, _, listingID string, offers []models.LeaseOffer) error {
	f.replaced[listingID] = offers
	return nil
}

func (f *fakeListingWriter) SoftDelete(_ context.Context, _, id string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeSessionSource struct {
	session   *models.ComparisonSession
	appliedAt bool
}

func (f *fakeSessionSource) Get(_ context.Context, _, _ string) (*models.ComparisonSession, error) {
	return f.session, nil
}

func (f *fakeSessionSource) SetAppliedAt(_ context.Context, _, _ string) error {
	f.appliedAt = true
	return nil
}

type fakeTaxonomySource struct {
	ref *models.ReferenceData
}

func (f *fakeTaxonomySource) LoadReferenceData(_ context.Context, _ string) (*models.ReferenceData, error) {
	return f.ref, nil
}

func intPtr(v int) *int { return &v }

func testRef() *models.ReferenceData {
	return &models.ReferenceData{
		Makes: map[string]models.Make{
			"toyota": {ID: "make-toyota", Name: "Toyota"},
		},
		Models: map[string]models.CarModel{
			"make-toyota|yaris": {ID: "model-yaris", MakeID: "make-toyota", Name: "Yaris"},
		},
		FuelTypes: map[string]models.FuelType{
			"hybrid": {ID: "fuel-hybrid", Name: "Hybrid"},
		},
	}
}

func testSession() *models.ComparisonSession {
	return &models.ComparisonSession{
		ID:       "session-1",
		TenantID: "tenant-1",
		SellerID: "seller-1",
		Status:   models.SessionStatusCompleted,
	}
}

func createChange(id string) *models.Change {
	data, _ := json.Marshal(models.ExtractedVehicle{
		Make:     "Toyota",
		Model:    "Yaris",
		Variant:  "1.5 Hybrid",
		FuelType: "Hybrid",
		Offers:   []models.ExtractedOffer{{MonthlyPrice: 3000, PeriodMonths: intPtr(36)}},
	})
	return &models.Change{
		ID:            id,
		TenantID:      "tenant-1",
		SessionID:     "session-1",
		ChangeType:    models.ChangeTypeCreate,
		ExtractedData: data,
		Status:        models.ChangeStatusPending,
	}
}

func updateChange(id, listingID string) *models.Change {
	data, _ := json.Marshal(models.ExtractedVehicle{
		Make:    "Toyota",
		Model:   "Yaris",
		Variant: "1.5 Hybrid",
		Offers:  []models.ExtractedOffer{{MonthlyPrice: 3200, PeriodMonths: intPtr(36)}},
	})
	return &models.Change{
		ID:            id,
		TenantID:      "tenant-1",
		SessionID:     "session-1",
		ChangeType:    models.ChangeTypeUpdate,
		ExtractedData: data,
		ListingID:     &listingID,
		FieldChanges: models.FieldChanges{
			models.OffersReplacementField: {Old: nil, New: nil},
		},
		Status: models.ChangeStatusPending,
	}
}

func deleteChange(id, listingID string) *models.Change {
	return &models.Change{
		ID:         id,
		TenantID:   "tenant-1",
		SessionID:  "session-1",
		ChangeType: models.ChangeTypeDelete,
		ListingID:  &listingID,
		Status:     models.ChangeStatusPending,
	}
}

func testEngine(changes *fakeChangeSource, listings *fakeListingWriter, sessions *fakeSessionSource) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEngine(logger, changes, listings, sessions, &fakeTaxonomySource{ref: testRef()}, nil)
}

func TestEngine_ApplySelected_SelectedAppliedRestDiscarded(t *testing.T) {
	changeA := createChange("change-a")
	changeB := deleteChange("change-b", "listing-b")
	changeC := createChange("change-c") // pending, not selected

	changes := &fakeChangeSource{changes: map[string]*models.Change{
		"change-a": changeA, "change-b": changeB, "change-c": changeC,
	}}
	listings := newFakeListingWriter()
	sessions := &fakeSessionSource{session: testSession()}
	engine := testEngine(changes, listings, sessions)

	result, err := engine.ApplySelected(context.Background(), "tenant-1", "session-1", []string{"change-a", "change-b"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.AppliedCount)
	assert.Equal(t, 1, result.DiscardedCount)
	assert.Empty(t, result.Failures)

	assert.Equal(t, models.ChangeStatusApplied, changes.changes["change-a"].Status)
	assert.Equal(t, models.ChangeStatusApplied, changes.changes["change-b"].Status)
	assert.Equal(t, models.ChangeStatusDiscarded, changes.changes["change-c"].Status)
	assert.NotNil(t, changes.changes["change-a"].ReviewedAt)

	require.Len(t, listings.created, 1)
	assert.Equal(t, "seller-1", listings.created[0].SellerID)
	assert.Equal(t, "make-toyota", listings.created[0].MakeID)
	assert.Equal(t, "model-yaris", listings.created[0].ModelID)
	require.Len(t, listings.created[0].Offers, 1)

	assert.Equal(t, []string{"listing-b"}, listings.deleted)
	assert.True(t, sessions.appliedAt)
}

func TestEngine_ApplySelected_UpdateReplacesOffers(t *testing.T) {
	change := updateChange("change-u", "listing-1")
	changes := &fakeChangeSource{changes: map[string]*models.Change{"change-u": change}}
	listings := newFakeListingWriter()
	sessions := &fakeSessionSource{session: testSession()}
	engine := testEngine(changes, listings, sessions)

	result, err := engine.ApplySelected(context.Background(), "tenant-1", "session-1", []string{"change-u"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.AppliedCount)

	replaced, ok := listings.replaced["listing-1"]
	require.True(t, ok)
	require.Len(t, replaced, 1)
	assert.Equal(t, 3200, replaced[0].MonthlyPrice)
	assert.Equal(t, "listing-1", replaced[0].ListingID)
}

func TestEngine_ApplySelected_UpdateResolvesLookupIDs(t *testing.T) {
	change := updateChange("change-u", "listing-1")
	change.FieldChanges = models.FieldChanges{
		"variant":   {Old: "1.5", New: "1.5 Hybrid"},
		"fuel_type": {Old: "Benzin", New: "Hybrid"},
	}
	var candidate models.ExtractedVehicle
	require.NoError(t, json.Unmarshal(change.ExtractedData, &candidate))
	candidate.FuelType = "Hybrid"
	change.ExtractedData, _ = json.Marshal(candidate)

	changes := &fakeChangeSource{changes: map[string]*models.Change{"change-u": change}}
	listings := newFakeListingWriter()
	sessions := &fakeSessionSource{session: testSession()}
	engine := testEngine(changes, listings, sessions)

	_, err := engine.ApplySelected(context.Background(), "tenant-1", "session-1", []string{"change-u"})
	require.NoError(t, err)

	fields := listings.updated["listing-1"]
	require.NotNil(t, fields)
	assert.Equal(t, "1.5 Hybrid", fields["variant"])

	fuelID, ok := fields["fuel_type_id"].(*string)
	require.True(t, ok)
	require.NotNil(t, fuelID)
	assert.Equal(t, "fuel-hybrid", *fuelID)
}

func TestEngine_ApplySelected_FailureIsolation(t *testing.T) {
	changeA := createChange("change-a")
	changeB := deleteChange("change-b", "listing-b")

	changes := &fakeChangeSource{changes: map[string]*models.Change{
		"change-a": changeA, "change-b": changeB,
	}}
	listings := newFakeListingWriter()
	listings.failCreate = errors.New("foreign key violation")
	sessions := &fakeSessionSource{session: testSession()}
	engine := testEngine(changes, listings, sessions)

	result, err := engine.ApplySelected(context.Background(), "tenant-1", "session-1", []string{"change-a", "change-b"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.AppliedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "change-a", result.Failures[0].ChangeID)
	assert.Contains(t, result.Failures[0].Error, "foreign key violation")

	// The failed change stays pending for re-selection... but the
	// discard pass must not sweep it up either.
	assert.Equal(t, models.ChangeStatusPending, changes.changes["change-a"].Status)
	assert.Equal(t, models.ChangeStatusApplied, changes.changes["change-b"].Status)
	assert.Contains(t, changes.excludedIDs, "change-a")
}

func TestEngine_ApplySelected_RejectsUnapplyableTypes(t *testing.T) {
	unchanged := createChange("change-un")
	unchanged.ChangeType = models.ChangeTypeUnchanged
	missing := createChange("change-mr")
	missing.ChangeType = models.ChangeTypeMissingReference

	changes := &fakeChangeSource{changes: map[string]*models.Change{
		"change-un": unchanged, "change-mr": missing,
	}}
	listings := newFakeListingWriter()
	sessions := &fakeSessionSource{session: testSession()}
	engine := testEngine(changes, listings, sessions)

	result, err := engine.ApplySelected(context.Background(), "tenant-1", "session-1", []string{"change-un", "change-mr"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.AppliedCount)
	assert.Equal(t, 2, result.SkippedCount)
	assert.Len(t, result.Failures, 2)

	// No side effects on the skipped changes.
	assert.Equal(t, models.ChangeStatusPending, changes.changes["change-un"].Status)
	assert.Equal(t, models.ChangeStatusPending, changes.changes["change-mr"].Status)
	assert.Empty(t, listings.created)
	assert.False(t, sessions.appliedAt)
}

func TestEngine_ApplySelected_IgnoresNonPending(t *testing.T) {
	applied := deleteChange("change-done", "listing-x")
	applied.Status = models.ChangeStatusApplied

	changes := &fakeChangeSource{changes: map[string]*models.Change{"change-done": applied}}
	listings := newFakeListingWriter()
	sessions := &fakeSessionSource{session: testSession()}
	engine := testEngine(changes, listings, sessions)

	result, err := engine.ApplySelected(context.Background(), "tenant-1", "session-1", []string{"change-done"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.AppliedCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Empty(t, listings.deleted)
}

func TestEngine_ApplySelected_ApprovedChangesApply(t *testing.T) {
	change := deleteChange("change-ap", "listing-x")
	change.Status = models.ChangeStatusApproved

	changes := &fakeChangeSource{changes: map[string]*models.Change{"change-ap": change}}
	listings := newFakeListingWriter()
	sessions := &fakeSessionSource{session: testSession()}
	engine := testEngine(changes, listings, sessions)

	result, err := engine.ApplySelected(context.Background(), "tenant-1", "session-1", []string{"change-ap"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.AppliedCount)
	assert.Equal(t, []string{"listing-x"}, listings.deleted)
}

func TestEngine_ApplySelected_UnknownIDReported(t *testing.T) {
	changes := &fakeChangeSource{changes: map[string]*models.Change{}}
	listings := newFakeListingWriter()
	sessions := &fakeSessionSource{session: testSession()}
	engine := testEngine(changes, listings, sessions)

	result, err := engine.ApplySelected(context.Background(), "tenant-1", "session-1", []string{"change-ghost"})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "change-ghost", result.Failures[0].ChangeID)
}

func TestEngine_ApplySelected_EmptySelectionRejected(t *testing.T) {
	changes := &fakeChangeSource{changes: map[string]*models.Change{}}
	engine := testEngine(changes, newFakeListingWriter(), &fakeSessionSource{session: testSession()})

	_, err := engine.ApplySelected(context.Background(), "tenant-1", "session-1", nil)
	require.Error(t, err)
	assert.False(t, changes.discardCalled)
}

func TestEngine_ApplySelected_CancellationSkipsDiscardPass(t *testing.T) {
	changeA := deleteChange("change-a", "listing-a")
	changeB := deleteChange("change-b", "listing-b")

	changes := &fakeChangeSource{changes: map[string]*models.Change{
		"change-a": changeA, "change-b": changeB,
	}}
	listings := newFakeListingWriter()
	sessions := &fakeSessionSource{session: testSession()}
	engine := testEngine(changes, listings, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.ApplySelected(ctx, "tenant-1", "session-1", []string{"change-a", "change-b"})
	require.Error(t, err)
	assert.Equal(t, 0, result.AppliedCount)
	assert.False(t, changes.discardCalled)
	assert.Equal(t, models.ChangeStatusPending, changes.changes["change-a"].Status)
	assert.Equal(t, models.ChangeStatusPending, changes.changes["change-b"].Status)
}
