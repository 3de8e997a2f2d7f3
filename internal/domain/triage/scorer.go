package triage

import (
	"context"

	"github.com/rs/zerolog"
)

// Scorer produces an assessment for one input. Implementations must either
// return a complete assessment or an error; never a partial or guessed one.
type Scorer interface {
	Assess(ctx context.Context, in Input) (*Assessment, error)
}

// engineScorer adapts Engine to the Scorer interface. The rule engine is
// local and infallible, so the context and error are unused.
type engineScorer struct{ engine *Engine }

func (s engineScorer) Assess(_ context.Context, in Input) (*Assessment, error) {
	return s.engine.Assess(in), nil
}

// EngineScorer wraps the rule engine as a Scorer.
func EngineScorer(e *Engine) Scorer { return engineScorer{engine: e} }

// FallbackScorer tries the primary scorer and, when fallback is enabled,
// recovers from its failure with the secondary. With fallback disabled the
// primary's error surfaces unchanged so callers can refuse to persist a
// guessed assessment.
type FallbackScorer struct {
	Primary  Scorer
	Fallback Scorer
	Enabled  bool
	Logger   zerolog.Logger
}

func (s *FallbackScorer) Assess(ctx context.Context, in Input) (*Assessment, error) {
	result, err := s.Primary.Assess(ctx, in)
	if err == nil {
		return result, nil
	}
	if !s.Enabled || s.Fallback == nil {
		return nil, err
	}
	s.Logger.Warn().Err(err).Msg("primary scorer failed, falling back to rule engine")
	return s.Fallback.Assess(ctx, in)
}
