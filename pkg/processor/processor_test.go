package processor

import (
	"context"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/comparison"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeListings struct {
	listings []models.Listing
}

func (f *fakeListings) ListBySeller(_ context.Context, _, _ string) ([]models.Listing, error) {
	return f.listings, nil
}

type fakeTaxonomy struct {
	ref *models.ReferenceData
}

func (f *fakeTaxonomy) LoadReferenceData(_ context.Context, _ string) (*models.ReferenceData, error) {
	return f.ref, nil
}

type fakeSessions struct {
	created   *models.ComparisonSession
	completed *models.ComparisonSession
	failed    bool
}

func (f *fakeSessions) Create(_ context.Context, session *models.ComparisonSession) error {
	f.created = session
	return nil
}

func (f *fakeSessions) MarkCompleted(_ context.Context, session *models.ComparisonSession) error {
	f.completed = session
	return nil
}

func (f *fakeSessions) MarkFailed(_ context.Context, _, _, _ string) error {
	f.failed = true
	return nil
}

type fakeChanges struct {
	batch []models.Change
}

func (f *fakeChanges) CreateBatch(_ context.Context, changes []models.Change) error {
	f.batch = append(f.batch, changes...)
	return nil
}

type fakeNotifier struct {
	completed []string
}

func (f *fakeNotifier) SessionCompleted(_ context.Context, session *models.ComparisonSession) {
	f.completed = append(f.completed, session.ID)
}

func testRef() *models.ReferenceData {
	return &models.ReferenceData{
		Makes: map[string]models.Make{
			"toyota": {ID: "make-toyota", Name: "Toyota"},
		},
		Models: map[string]models.CarModel{
			"make-toyota|yaris": {ID: "model-yaris", MakeID: "make-toyota", Name: "Yaris"},
		},
		BodyTypes:     map[string]models.BodyType{},
		FuelTypes:     map[string]models.FuelType{},
		Transmissions: map[string]models.Transmission{},
	}
}

func newTestProcessor(t *testing.T) (*Processor, *fakeSessions, *fakeChanges, *fakeNotifier) {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	matcher := matching.NewEngine(logger, matching.DefaultConfig())
	classifier := comparison.NewClassifier(logger, matcher)

	sessions := &fakeSessions{}
	changes := &fakeChanges{}
	notifier := &fakeNotifier{}
	builder := comparison.NewBuilder(logger, classifier, &fakeListings{}, &fakeTaxonomy{ref: testRef()}, sessions, changes)

	return NewProcessor(logger, builder, notifier), sessions, changes, notifier
}

func TestHandleMessage(t *testing.T) {
	p, sessions, changes, notifier := newTestProcessor(t)

	msg := &kafka.IncomingMessage{
		Extraction: &kafka.ExtractionMessage{
			TenantID:       "tenant-1",
			SellerID:       "seller-1",
			SessionName:    "August batch",
			ExtractionType: models.ExtractionTypeCreate,
			Vehicles: []models.ExtractedVehicle{
				{Make: "Toyota", Model: "Yaris", Variant: "1.5 Hybrid"},
			},
		},
	}

	err := p.HandleMessage(context.Background(), msg)
	require.NoError(t, err)

	require.NotNil(t, sessions.completed)
	assert.Equal(t, models.SessionStatusCompleted, sessions.completed.Status)
	assert.Equal(t, "August batch", sessions.completed.Name)
	assert.Len(t, changes.batch, 1)
	assert.Equal(t, models.ChangeTypeCreate, changes.batch[0].ChangeType)
	assert.Equal(t, []string{sessions.completed.ID}, notifier.completed)
}

func TestHandleMessage_DefaultsSessionName(t *testing.T) {
	p, sessions, _, _ := newTestProcessor(t)

	msg := &kafka.IncomingMessage{
		Extraction: &kafka.ExtractionMessage{
			TenantID:       "tenant-1",
			SellerID:       "seller-1",
			ExtractionType: models.ExtractionTypeUpdate,
		},
	}

	err := p.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, sessions.completed)
	assert.True(t, strings.HasPrefix(sessions.completed.Name, "Extraction "))
}

func TestHandleMessage_NoPayload(t *testing.T) {
	p, sessions, _, notifier := newTestProcessor(t)

	err := p.HandleMessage(context.Background(), &kafka.IncomingMessage{})
	require.Error(t, err)
	assert.Nil(t, sessions.created)
	assert.Empty(t, notifier.completed)
}
