// Package matching implements listing identity matching
package matching

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Result describes the outcome of matching one candidate against the
// seller's stored listings.
type Result struct {
	Listing    *models.Listing
	Method     models.MatchMethod
	Confidence float64
}

// EngineConfig contains configuration for the match engine
type EngineConfig struct {
	FuzzyConfidenceFloor float64 // Minimum variant similarity to accept a fuzzy match (default: 0.7)
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		FuzzyConfidenceFloor: 0.7,
	}
}

// Engine matches extracted candidates against a seller's listings
type Engine struct {
	logger ectologger.Logger
	scorer *Scorer
	config EngineConfig
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, config EngineConfig) *Engine {
	if config.FuzzyConfidenceFloor <= 0 {
		config.FuzzyConfidenceFloor = DefaultConfig().FuzzyConfidenceFloor
	}
	return &Engine{
		logger: logger,
		scorer: NewScorer(),
		config: config,
	}
}

// Match resolves a candidate to at most one listing. Exact identity-key
// matches win outright; otherwise the best fuzzy variant match at or
// above the confidence floor is taken. Fuzzy candidates must share the
// candidate's make and model exactly.
func (e *Engine) Match(candidate *models.ExtractedVehicle, listings []models.Listing) Result {
	key := normalizers.IdentityKey(candidate.Make, candidate.Model, candidate.Variant)

	if exact := e.matchExact(key, listings); exact != nil {
		return Result{Listing: exact, Method: models.MatchMethodExact, Confidence: 1.0}
	}

	if fuzzy, score := e.matchFuzzy(candidate, listings); fuzzy != nil {
		return Result{Listing: fuzzy, Method: models.MatchMethodFuzzy, Confidence: score}
	}

	return Result{Method: models.MatchMethodNone, Confidence: 0.0}
}

func (e *Engine) matchExact(key string, listings []models.Listing) *models.Listing {
	var best *models.Listing
	for i := range listings {
		l := &listings[i]
		if normalizers.IdentityKey(l.MakeName, l.ModelName, l.Variant) != key {
			continue
		}
		// Duplicate identity keys should not exist, but if they do the
		// most recently updated listing wins.
		if best == nil || l.UpdatedAt.After(best.UpdatedAt) {
			best = l
		}
	}
	return best
}

func (e *Engine) matchFuzzy(candidate *models.ExtractedVehicle, listings []models.Listing) (*models.Listing, float64) {
	candMake := normalizers.NormalizeIdentity(candidate.Make)
	candModel := normalizers.NormalizeIdentity(candidate.Model)

	var best *models.Listing
	bestScore := 0.0

	for i := range listings {
		l := &listings[i]
		if normalizers.NormalizeIdentity(l.MakeName) != candMake {
			continue
		}
		if normalizers.NormalizeIdentity(l.ModelName) != candModel {
			continue
		}

		score := e.scorer.VariantSimilarity(candidate.Variant, l.Variant)
		if score < e.config.FuzzyConfidenceFloor {
			continue
		}

		switch {
		case best == nil, score > bestScore:
			best = l
			bestScore = score
		case score == bestScore && l.UpdatedAt.After(best.UpdatedAt):
			best = l
		}
	}

	return best, bestScore
}
