// Package evaluator decides whether a flag record is active. Evaluation is a
// pure read-time concern: nothing here is ever persisted.
package evaluator

import (
	"log/slog"
	"strconv"

	"github.com/sandeepkv93/feature-flag-store/internal/domain"
)

type Evaluator struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger}
}

// Evaluate reports whether the record is active right now. Boolean flags and
// environment variables follow the Enabled switch directly; percentage flags
// additionally draw against their rollout threshold.
func (e *Evaluator) Evaluate(rec *domain.FlagRecord) bool {
	if rec == nil {
		return false
	}
	if rec.Kind == domain.KindEnvironmentVariable || rec.SubKind == nil {
		return rec.Kind == domain.KindEnvironmentVariable && rec.Enabled
	}
	switch *rec.SubKind {
	case domain.SubKindBoolean:
		return rec.Enabled
	case domain.SubKindPercentageFilter:
		return rec.Enabled && e.drawPercentage(rec)
	default:
		return false
	}
}

// drawPercentage is probabilistically true for threshold% of calls. A flag
// with a missing or non-positive threshold is never active; that is policy,
// so it logs at warn rather than failing.
func (e *Evaluator) drawPercentage(rec *domain.FlagRecord) bool {
	threshold, err := strconv.ParseFloat(rec.Value, 64)
	if err != nil || threshold <= 0 {
		e.logger.Warn("percentage flag has no positive rollout threshold, evaluating to false",
			"flag", rec.Name,
			"value", rec.Value,
		)
		return false
	}
	return nextFloat()*100 < threshold
}
