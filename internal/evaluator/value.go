package evaluator

import (
	"fmt"
	"strconv"

	"github.com/sandeepkv93/feature-flag-store/internal/domain"
)

// Value constrains the types an environment variable can be parsed into.
type Value interface {
	string | bool | int | int64 | float64
}

// EnvironmentValue parses the record's value into T. The record must evaluate
// to active (a disabled environment variable fails exactly like a disabled
// flag) and must be of kind EnvironmentVariable; the two failures are distinct
// error conditions.
func EnvironmentValue[T Value](e *Evaluator, rec *domain.FlagRecord) (T, error) {
	var zero T

	if !e.Evaluate(rec) {
		return zero, domain.ErrDisabled
	}
	if rec.Kind != domain.KindEnvironmentVariable {
		return zero, domain.ErrWrongKind
	}

	parsed, err := parseValue[T](rec.Value)
	if err != nil {
		return zero, fmt.Errorf("parse value of '%s': %w", rec.Name, err)
	}
	return parsed, nil
}

func parseValue[T Value](raw string) (T, error) {
	var zero T
	switch any(zero).(type) {
	case string:
		return any(raw).(T), nil
	case bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	default:
		return zero, fmt.Errorf("unsupported environment value type %T", zero)
	}
}
