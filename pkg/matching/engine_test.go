package matching

import (
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEngine(logger, DefaultConfig())
}

func listing(id, makeName, modelName, variant string, updatedAt time.Time) models.Listing {
	return models.Listing{
		ID:        id,
		MakeName:  makeName,
		ModelName: modelName,
		Variant:   variant,
		UpdatedAt: updatedAt,
	}
}

func TestEngine_Match_Exact(t *testing.T) {
	engine := testEngine(t)
	now := time.Now()

	listings := []models.Listing{
		listing("l1", "Volkswagen", "Golf", "GTI", now),
		listing("l2", "Volkswagen", "Golf", "Style", now),
	}

	t.Run("exact identity key match", func(t *testing.T) {
		result := engine.Match(&models.ExtractedVehicle{Make: "Volkswagen", Model: "Golf", Variant: "GTI"}, listings)
		require.NotNil(t, result.Listing)
		assert.Equal(t, "l1", result.Listing.ID)
		assert.Equal(t, models.MatchMethodExact, result.Method)
		assert.Equal(t, 1.0, result.Confidence)
	})

	t.Run("exact match is case and whitespace insensitive", func(t *testing.T) {
		result := engine.Match(&models.ExtractedVehicle{Make: "VOLKSWAGEN", Model: " golf ", Variant: "gti"}, listings)
		require.NotNil(t, result.Listing)
		assert.Equal(t, "l1", result.Listing.ID)
		assert.Equal(t, models.MatchMethodExact, result.Method)
	})

	t.Run("duplicate keys resolve to most recently updated", func(t *testing.T) {
		dupes := []models.Listing{
			listing("old", "Audi", "A4", "Avant", now.Add(-time.Hour)),
			listing("new", "Audi", "A4", "Avant", now),
		}
		result := engine.Match(&models.ExtractedVehicle{Make: "Audi", Model: "A4", Variant: "Avant"}, dupes)
		require.NotNil(t, result.Listing)
		assert.Equal(t, "new", result.Listing.ID)
	})
}

func TestEngine_Match_Fuzzy(t *testing.T) {
	engine := testEngine(t)
	now := time.Now()

	t.Run("close variant above floor matches", func(t *testing.T) {
		listings := []models.Listing{
			listing("l1", "Volkswagen", "Golf", "GTI Performance", now),
		}
		result := engine.Match(&models.ExtractedVehicle{Make: "Volkswagen", Model: "Golf", Variant: "GTI  Performace"}, listings)
		require.NotNil(t, result.Listing)
		assert.Equal(t, models.MatchMethodFuzzy, result.Method)
		assert.GreaterOrEqual(t, result.Confidence, 0.7)
		assert.Less(t, result.Confidence, 1.0)
	})

	t.Run("requires exact make and model", func(t *testing.T) {
		listings := []models.Listing{
			listing("l1", "Volkswagen", "Passat", "GTI Performance", now),
		}
		result := engine.Match(&models.ExtractedVehicle{Make: "Volkswagen", Model: "Golf", Variant: "GTI Performance"}, listings)
		assert.Nil(t, result.Listing)
		assert.Equal(t, models.MatchMethodNone, result.Method)
	})

	t.Run("below floor is no match", func(t *testing.T) {
		listings := []models.Listing{
			listing("l1", "Volkswagen", "Golf", "Life Plus", now),
		}
		result := engine.Match(&models.ExtractedVehicle{Make: "Volkswagen", Model: "Golf", Variant: "R-Line Black Edition"}, listings)
		assert.Nil(t, result.Listing)
		assert.Equal(t, models.MatchMethodNone, result.Method)
		assert.Equal(t, 0.0, result.Confidence)
	})

	t.Run("highest score wins", func(t *testing.T) {
		listings := []models.Listing{
			listing("far", "Volkswagen", "Golf", "GTI Clubsport 45", now),
			listing("near", "Volkswagen", "Golf", "GTI Clubsports", now),
		}
		result := engine.Match(&models.ExtractedVehicle{Make: "Volkswagen", Model: "Golf", Variant: "GTI Clubsport"}, listings)
		require.NotNil(t, result.Listing)
		assert.Equal(t, "near", result.Listing.ID)
	})

	t.Run("score ties resolve to most recently updated", func(t *testing.T) {
		listings := []models.Listing{
			listing("old", "Volkswagen", "Golf", "GTI Performances", now.Add(-time.Hour)),
			listing("new", "Volkswagen", "Golf", "GTI Performances", now),
		}
		result := engine.Match(&models.ExtractedVehicle{Make: "Volkswagen", Model: "Golf", Variant: "GTI Performance"}, listings)
		require.NotNil(t, result.Listing)
		assert.Equal(t, "new", result.Listing.ID)
	})
}

func TestEngine_Match_None(t *testing.T) {
	engine := testEngine(t)

	t.Run("empty listing set", func(t *testing.T) {
		result := engine.Match(&models.ExtractedVehicle{Make: "Tesla", Model: "Model 3", Variant: "Long Range"}, nil)
		assert.Nil(t, result.Listing)
		assert.Equal(t, models.MatchMethodNone, result.Method)
	})
}

func TestScorer_VariantSimilarity(t *testing.T) {
	scorer := NewScorer()

	t.Run("identical", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.VariantSimilarity("GTI", "GTI"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.VariantSimilarity("gti", "GTI"))
	})

	t.Run("token reordering scores via overlap", func(t *testing.T) {
		score := scorer.VariantSimilarity("Performance GTI", "GTI Performance")
		assert.Equal(t, 1.0, score)
	})

	t.Run("unrelated strings score low", func(t *testing.T) {
		assert.Less(t, scorer.VariantSimilarity("Sportline", "Ambiente"), 0.5)
	})
}

func TestScorer_LevenshteinDistance(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"GTI", "GTD", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, scorer.LevenshteinDistance(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
