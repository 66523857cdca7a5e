package comparison

import (
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewClassifier(logger, matching.NewEngine(logger, matching.DefaultConfig()))
}

func changesByType(changes []models.Change, ct models.ChangeType) []models.Change {
	var out []models.Change
	for _, c := range changes {
		if c.ChangeType == ct {
			out = append(out, c)
		}
	}
	return out
}

func TestClassifier_NewCandidate(t *testing.T) {
	classifier := testClassifier(t)
	ref := testReferenceData()

	candidates := []models.ExtractedVehicle{
		{Make: "Toyota", Model: "Yaris", Variant: "1.5 Hybrid"},
	}

	changes, err := classifier.Classify(candidates, nil, ref)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	change := changes[0]
	assert.Equal(t, models.ChangeTypeCreate, change.ChangeType)
	assert.Equal(t, models.MatchMethodNone, change.MatchMethod)
	assert.Equal(t, models.ChangeStatusPending, change.Status)
	assert.Nil(t, change.ListingID)
	assert.Equal(t, "New listing: Toyota Yaris 1.5 Hybrid", change.ChangeSummary)
	assert.NotEmpty(t, change.ExtractedData)
}

func TestClassifier_UpdatedCandidate(t *testing.T) {
	classifier := testClassifier(t)
	ref := testReferenceData()

	listing := *baseListing()
	listing.Offers[0].MonthlyPrice = 3000
	candidate := *baseCandidate()
	candidate.Offers[0].MonthlyPrice = 3200

	changes, err := classifier.Classify([]models.ExtractedVehicle{candidate}, []models.Listing{listing}, ref)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	change := changes[0]
	assert.Equal(t, models.ChangeTypeUpdate, change.ChangeType)
	assert.Equal(t, models.MatchMethodExact, change.MatchMethod)
	assert.Equal(t, 1.0, change.ConfidenceScore)
	require.NotNil(t, change.ListingID)
	assert.Equal(t, listing.ID, *change.ListingID)
	assert.Contains(t, change.FieldChanges, models.OffersReplacementField)
}

func TestClassifier_UnchangedCandidate(t *testing.T) {
	classifier := testClassifier(t)
	ref := testReferenceData()

	changes, err := classifier.Classify(
		[]models.ExtractedVehicle{*baseCandidate()},
		[]models.Listing{*baseListing()},
		ref,
	)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	assert.Equal(t, models.ChangeTypeUnchanged, changes[0].ChangeType)
	assert.Empty(t, changes[0].FieldChanges)
}

func TestClassifier_DeletedListing(t *testing.T) {
	classifier := testClassifier(t)
	ref := testReferenceData()

	listing := *baseListing()

	changes, err := classifier.Classify(nil, []models.Listing{listing}, ref)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	change := changes[0]
	assert.Equal(t, models.ChangeTypeDelete, change.ChangeType)
	require.NotNil(t, change.ListingID)
	assert.Equal(t, listing.ID, *change.ListingID)
	assert.Empty(t, change.ExtractedData)
	assert.Equal(t, "Remove listing: Toyota Yaris 1.5 Hybrid", change.ChangeSummary)
}

func TestClassifier_MissingReference(t *testing.T) {
	classifier := testClassifier(t)
	ref := testReferenceData()

	t.Run("unknown model", func(t *testing.T) {
		candidates := []models.ExtractedVehicle{
			{Make: "Toyota", Model: "bZ5X"},
		}
		changes, err := classifier.Classify(candidates, nil, ref)
		require.NoError(t, err)
		require.Len(t, changes, 1)

		assert.Equal(t, models.ChangeTypeMissingReference, changes[0].ChangeType)
		assert.Equal(t, "Unknown model: bZ5X under Toyota", changes[0].ChangeSummary)
	})

	t.Run("unknown make", func(t *testing.T) {
		candidates := []models.ExtractedVehicle{
			{Make: "Xpeng", Model: "G6"},
		}
		changes, err := classifier.Classify(candidates, nil, ref)
		require.NoError(t, err)
		require.Len(t, changes, 1)

		assert.Equal(t, models.ChangeTypeMissingReference, changes[0].ChangeType)
		assert.Equal(t, "Unknown make: Xpeng", changes[0].ChangeSummary)
	})

	t.Run("model lookup is case insensitive", func(t *testing.T) {
		candidates := []models.ExtractedVehicle{
			{Make: "TOYOTA", Model: "YARIS", Variant: "Active"},
		}
		changes, err := classifier.Classify(candidates, nil, ref)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, models.ChangeTypeCreate, changes[0].ChangeType)
	})
}

func TestClassifier_ConflictDemotion(t *testing.T) {
	classifier := testClassifier(t)
	ref := testReferenceData()

	listing := models.Listing{
		ID:        "listing-golf",
		MakeName:  "Volkswagen",
		ModelName: "Golf",
		Variant:   "GTI Performance",
		UpdatedAt: time.Now(),
	}

	t.Run("higher confidence wins", func(t *testing.T) {
		candidates := []models.ExtractedVehicle{
			{Make: "Volkswagen", Model: "Golf", Variant: "GTI Performances"}, // fuzzy
			{Make: "Volkswagen", Model: "Golf", Variant: "GTI Performance"},  // exact
		}

		changes, err := classifier.Classify(candidates, []models.Listing{listing}, ref)
		require.NoError(t, err)
		require.Len(t, changes, 2)

		// Exact candidate keeps the listing; the fuzzy one is demoted
		// to unmatched and falls through to create.
		winner := changes[1]
		require.NotNil(t, winner.ListingID)
		assert.Equal(t, "listing-golf", *winner.ListingID)
		assert.Equal(t, models.MatchMethodExact, winner.MatchMethod)

		loser := changes[0]
		assert.Nil(t, loser.ListingID)
		assert.Equal(t, models.MatchMethodNone, loser.MatchMethod)
	})

	t.Run("equal confidence resolves by extraction order", func(t *testing.T) {
		candidates := []models.ExtractedVehicle{
			{Make: "Volkswagen", Model: "Golf", Variant: "GTI Performance"},
			{Make: "Volkswagen", Model: "Golf", Variant: "GTI Performance"},
		}

		changes, err := classifier.Classify(candidates, []models.Listing{listing}, ref)
		require.NoError(t, err)
		require.Len(t, changes, 2)

		require.NotNil(t, changes[0].ListingID)
		assert.Nil(t, changes[1].ListingID)
	})

	t.Run("no two changes claim the same listing", func(t *testing.T) {
		candidates := []models.ExtractedVehicle{
			{Make: "Volkswagen", Model: "Golf", Variant: "GTI Performance"},
			{Make: "Volkswagen", Model: "Golf", Variant: "GTI Performance "},
			{Make: "Volkswagen", Model: "Golf", Variant: "GTI Performances"},
		}

		changes, err := classifier.Classify(candidates, []models.Listing{listing}, ref)
		require.NoError(t, err)

		claims := 0
		for _, c := range changes {
			if c.ListingID != nil && c.ChangeType != models.ChangeTypeUnchanged {
				claims++
			}
		}
		assert.LessOrEqual(t, claims, 1)
	})
}

func TestClassifier_Deterministic(t *testing.T) {
	classifier := testClassifier(t)
	ref := testReferenceData()

	candidates := []models.ExtractedVehicle{
		*baseCandidate(),
		{Make: "Toyota", Model: "Yaris", Variant: "Active"},
		{Make: "Toyota", Model: "bZ5X"},
	}
	listings := []models.Listing{
		*baseListing(),
		{ID: "listing-2", MakeName: "Volkswagen", ModelName: "Golf", Variant: "Style", UpdatedAt: time.Now()},
	}

	first, err := classifier.Classify(candidates, listings, ref)
	require.NoError(t, err)
	second, err := classifier.Classify(candidates, listings, ref)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChangeType, second[i].ChangeType, "change %d", i)
		assert.Equal(t, first[i].ListingID, second[i].ListingID, "change %d", i)
		assert.Equal(t, first[i].FieldChanges, second[i].FieldChanges, "change %d", i)
		assert.Equal(t, first[i].ExtractionOrder, second[i].ExtractionOrder, "change %d", i)
	}
}

func TestClassifier_SummaryCountsMatchChangeSet(t *testing.T) {
	classifier := testClassifier(t)
	ref := testReferenceData()

	candidate := *baseCandidate()
	candidate.Horsepower = intPtr(130)

	candidates := []models.ExtractedVehicle{
		candidate,
		{Make: "Toyota", Model: "Yaris", Variant: "Active"},
	}
	listings := []models.Listing{
		*baseListing(),
		{ID: "listing-gone", MakeName: "Volkswagen", ModelName: "Golf", Variant: "Style", UpdatedAt: time.Now()},
	}

	changes, err := classifier.Classify(candidates, listings, ref)
	require.NoError(t, err)

	assert.Len(t, changesByType(changes, models.ChangeTypeUpdate), 1)
	assert.Len(t, changesByType(changes, models.ChangeTypeCreate), 1)
	assert.Len(t, changesByType(changes, models.ChangeTypeDelete), 1)
	assert.Empty(t, changesByType(changes, models.ChangeTypeUnchanged))
}
