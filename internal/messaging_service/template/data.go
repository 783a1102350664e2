package template

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingField is wrapped by field lookups when a required value is absent.
var ErrMissingField = errors.New("missing template field")

// ErrUnknownTemplate is returned by Render for an unregistered key.
var ErrUnknownTemplate = errors.New("unknown template key")

// Data carries the values a template needs. Keys are snake_case field names.
type Data map[string]any

// String returns a required string field.
func (d Data) String(key string) (string, error) {
	v, ok := d[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrMissingField, key)
	}
	return s, nil
}

// Int returns a required integer field, accepting the numeric types JSON
// decoding and callers commonly produce.
func (d Data) Int(key string) (int, error) {
	v, ok := d[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not an integer", ErrMissingField, key)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: %s is not an integer", ErrMissingField, key)
	}
}

// Float returns a required float field.
func (d Data) Float(key string) (float64, error) {
	v, ok := d[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not a number", ErrMissingField, key)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: %s is not a number", ErrMissingField, key)
	}
}

// OptString returns an optional string field or fallback.
func (d Data) OptString(key, fallback string) string {
	if v, ok := d[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// OptFloat returns an optional float field or fallback.
func (d Data) OptFloat(key string, fallback float64) float64 {
	if _, ok := d[key]; !ok {
		return fallback
	}
	f, err := d.Float(key)
	if err != nil {
		return fallback
	}
	return f
}

// OptInt returns an optional int field or fallback.
func (d Data) OptInt(key string, fallback int) int {
	if _, ok := d[key]; !ok {
		return fallback
	}
	n, err := d.Int(key)
	if err != nil {
		return fallback
	}
	return n
}
