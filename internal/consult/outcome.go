package consult

import (
	"errors"

	"github.com/mfalkner/arbiter/internal/models"
)

// OutcomeKind tags the distinct results of a single consultation so callers
// can switch on them instead of matching error values.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeUnavailable
	OutcomeTimedOut
	OutcomeFailed
)

// Outcome is the tagged result of a single-tool consultation. Response is
// set only for OutcomeSuccess; Err only for OutcomeTimedOut and
// OutcomeFailed.
type Outcome struct {
	Kind     OutcomeKind
	Response *models.ToolResponse
	Err      error
}

// classifyOutcome folds a (response, error) pair into an Outcome.
func classifyOutcome(resp *models.ToolResponse, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeSuccess, Response: resp}
	case errors.Is(err, ErrNoToolsAvailable):
		return Outcome{Kind: OutcomeUnavailable, Err: err}
	case errors.Is(err, ErrConsultationTimeout):
		return Outcome{Kind: OutcomeTimedOut, Err: err}
	default:
		return Outcome{Kind: OutcomeFailed, Err: err}
	}
}
