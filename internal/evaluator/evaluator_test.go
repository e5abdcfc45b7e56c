package evaluator

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/sandeepkv93/feature-flag-store/internal/domain"
)

func newTestEvaluator() *Evaluator {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func subKind(s domain.SubKind) *domain.SubKind { return &s }

func TestEvaluateBooleanFollowsEnabled(t *testing.T) {
	e := newTestEvaluator()

	for _, enabled := range []bool{true, false} {
		rec := &domain.FlagRecord{
			Name:    "bool-flag",
			Kind:    domain.KindFeatureFlag,
			SubKind: subKind(domain.SubKindBoolean),
			Enabled: enabled,
			// Value must not influence boolean evaluation even when set.
			Value: "100",
		}
		if got := e.Evaluate(rec); got != enabled {
			t.Fatalf("boolean flag with Enabled=%v evaluated to %v", enabled, got)
		}
	}
}

func TestEvaluateEnvironmentVariableFollowsEnabled(t *testing.T) {
	e := newTestEvaluator()

	rec := &domain.FlagRecord{Name: "env", Kind: domain.KindEnvironmentVariable, Value: "7", Enabled: true}
	if !e.Evaluate(rec) {
		t.Fatal("enabled environment variable should evaluate true")
	}
	rec.Enabled = false
	if e.Evaluate(rec) {
		t.Fatal("disabled environment variable should evaluate false")
	}
}

func TestEvaluatePercentageDistribution(t *testing.T) {
	e := newTestEvaluator()
	rec := &domain.FlagRecord{
		Name:    "rollout",
		Kind:    domain.KindFeatureFlag,
		SubKind: subKind(domain.SubKindPercentageFilter),
		Enabled: true,
		Value:   "50",
	}

	const n = 10000
	hits := 0
	for i := 0; i < n; i++ {
		if e.Evaluate(rec) {
			hits++
		}
	}
	fraction := float64(hits) / n
	if math.Abs(fraction-0.5) > 0.05 {
		t.Fatalf("threshold 50 should activate ~half of evaluations, got %.3f", fraction)
	}
}

func TestEvaluatePercentageNeverActiveCases(t *testing.T) {
	e := newTestEvaluator()

	for _, value := range []string{"", "0", "-10", "not-a-number"} {
		rec := &domain.FlagRecord{
			Name:    "rollout",
			Kind:    domain.KindFeatureFlag,
			SubKind: subKind(domain.SubKindPercentageFilter),
			Enabled: true,
			Value:   value,
		}
		for i := 0; i < 100; i++ {
			if e.Evaluate(rec) {
				t.Fatalf("percentage flag with value %q must never be active", value)
			}
		}
	}
}

func TestEvaluatePercentageDisabledShortCircuits(t *testing.T) {
	e := newTestEvaluator()
	rec := &domain.FlagRecord{
		Name:    "rollout",
		Kind:    domain.KindFeatureFlag,
		SubKind: subKind(domain.SubKindPercentageFilter),
		Enabled: false,
		Value:   "100",
	}
	for i := 0; i < 100; i++ {
		if e.Evaluate(rec) {
			t.Fatal("disabled percentage flag must never be active")
		}
	}
}

func TestEvaluateConcurrentDraws(t *testing.T) {
	e := newTestEvaluator()
	rec := &domain.FlagRecord{
		Name:    "rollout",
		Kind:    domain.KindFeatureFlag,
		SubKind: subKind(domain.SubKindPercentageFilter),
		Enabled: true,
		Value:   "50",
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				e.Evaluate(rec)
			}
		}()
	}
	wg.Wait()
}

func TestEnvironmentValueParsesTypes(t *testing.T) {
	e := newTestEvaluator()
	rec := &domain.FlagRecord{Name: "retries", Kind: domain.KindEnvironmentVariable, Enabled: true, Value: "3"}

	n, err := EnvironmentValue[int](e, rec)
	if err != nil || n != 3 {
		t.Fatalf("int parse: got %v, %v", n, err)
	}

	rec.Value = "2.5"
	f, err := EnvironmentValue[float64](e, rec)
	if err != nil || f != 2.5 {
		t.Fatalf("float parse: got %v, %v", f, err)
	}

	rec.Value = "true"
	b, err := EnvironmentValue[bool](e, rec)
	if err != nil || !b {
		t.Fatalf("bool parse: got %v, %v", b, err)
	}

	rec.Value = "plain"
	s, err := EnvironmentValue[string](e, rec)
	if err != nil || s != "plain" {
		t.Fatalf("string parse: got %v, %v", s, err)
	}

	rec.Value = "not-an-int"
	if _, err := EnvironmentValue[int](e, rec); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvironmentValueErrorConditions(t *testing.T) {
	e := newTestEvaluator()

	disabled := &domain.FlagRecord{Name: "x", Kind: domain.KindEnvironmentVariable, Enabled: false, Value: "1"}
	if _, err := EnvironmentValue[int](e, disabled); !errors.Is(err, domain.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	wrongKind := &domain.FlagRecord{
		Name:    "x",
		Kind:    domain.KindFeatureFlag,
		SubKind: subKind(domain.SubKindBoolean),
		Enabled: true,
	}
	if _, err := EnvironmentValue[int](e, wrongKind); !errors.Is(err, domain.ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
}
