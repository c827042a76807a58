// Package schema validates the structured payloads the model returns through
// tool calls. Validators are pure: they never mutate their input and stop at
// the first violation, naming the offending field.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrValidationFailed matches every *FieldError via errors.Is.
var ErrValidationFailed = errors.New("validation failed")

// FieldError names the first field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Reason
}

func (e *FieldError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Result is {Valid: true} or {Valid: false, Err: reason}.
type Result struct {
	Valid bool
	Err   *FieldError
}

// Error returns the failure reason, or "" for a valid result.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Reason
}

// AsError returns nil for a valid result and the *FieldError otherwise.
func (r Result) AsError() error {
	if r.Valid || r.Err == nil {
		return nil
	}
	return r.Err
}

func valid() Result {
	return Result{Valid: true}
}

func invalid(field, format string, args ...any) Result {
	return Result{Err: &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}}
}

// Decode parses raw JSON into the generic form the validators accept.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func integer(v any) (float64, bool) {
	f, ok := number(v)
	if !ok || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return f, true
}

func str(v any) bool {
	_, ok := v.(string)
	return ok
}

func boolean(v any) bool {
	_, ok := v.(bool)
	return ok
}

func requireFields(obj map[string]any, prefix string, fields ...string) (Result, bool) {
	for _, f := range fields {
		if _, ok := obj[f]; !ok {
			if prefix == "" {
				return invalid(f, "Missing required field: %s", f), false
			}
			return invalid(prefix+"."+f, "%s missing field: %s", prefix, f), false
		}
	}
	return Result{}, true
}

func contains(allowed []string, id any) bool {
	s, ok := id.(string)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}
