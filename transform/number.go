package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is a monetary or quantity value that tolerates the loose encodings
// produced by extraction: JSON numbers, numeric strings ("12.50", "$1,200.00")
// and null/empty values.
type Number struct {
	Value float64
	Valid bool
}

func NumberOf(value float64) Number {
	return Number{Value: value, Valid: true}
}

func (n Number) Float() float64 {
	if !n.Valid {
		return 0
	}
	return n.Value
}

func (n Number) OrDefault(fallback float64) float64 {
	if !n.Valid {
		return fallback
	}
	return n.Value
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *Number) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*n = Number{}
		return nil
	}
	var raw any
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("transform: decode number: %w", err)
	}
	value, ok, err := ToFloat(raw)
	if err != nil {
		return err
	}
	*n = Number{Value: value, Valid: ok}
	return nil
}

// ToFloat coerces a decoded JSON value into a float64. The boolean result is
// false when the value is absent (nil or blank string).
func ToFloat(value any) (float64, bool, error) {
	switch typed := value.(type) {
	case nil:
		return 0, false, nil
	case Number:
		return typed.Value, typed.Valid, nil
	case int:
		return float64(typed), true, nil
	case int32:
		return float64(typed), true, nil
	case int64:
		return float64(typed), true, nil
	case float32:
		return float64(typed), true, nil
	case float64:
		return typed, true, nil
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("transform: parse number %q: %w", typed.String(), err)
		}
		return parsed, true, nil
	case string:
		candidate := normalizeNumericString(typed)
		if candidate == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(candidate, 64)
		if err != nil {
			return 0, false, fmt.Errorf("transform: parse string %q as number: %w", typed, err)
		}
		return parsed, true, nil
	default:
		return 0, false, fmt.Errorf("transform: unsupported number conversion from %T", value)
	}
}

func normalizeNumericString(value string) string {
	candidate := strings.TrimSpace(value)
	candidate = strings.TrimPrefix(candidate, "$")
	candidate = strings.ReplaceAll(candidate, ",", "")
	return strings.TrimSpace(candidate)
}

// Round2 rounds half away from zero to cents.
func Round2(value float64) float64 {
	rounded := math.Round(value*100) / 100
	if rounded == 0 {
		return 0
	}
	return rounded
}

func withinTolerance(a, b float64) bool {
	return math.Abs(a-b) <= amountTolerance+1e-9
}

const amountTolerance = 0.01
