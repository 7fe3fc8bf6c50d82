package unit

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/teranos/shelf/errors"
)

// Options are the key/value pairs passed to Unit.Configure. Values arrive
// from Go callers, JSON bodies (float64) and TOML/viper (int64, int), so the
// accessors accept any numeric representation that fits.
type Options map[string]any

// CheckKeys rejects keys missing from schema and required keys that are absent.
func (o Options) CheckKeys(schema map[string]ConfigField) error {
	var unknown []string
	for key := range o {
		if _, ok := schema[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.NewInvalidConfigError("unknown option(s): %s", strings.Join(unknown, ", "))
	}

	var missing []string
	for key, field := range schema {
		if _, ok := o[key]; field.Required && !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.NewInvalidConfigError("missing required option(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// Int returns the integer option key, checked against [min, max].
// found is false when the key is absent.
func (o Options) Int(key string, min, max int) (value int, found bool, err error) {
	raw, ok := o[key]
	if !ok {
		return 0, false, nil
	}

	var n int64
	switch v := raw.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint:
		n = int64(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, true, errors.NewInvalidConfigError("%s must be an integer, got %v", key, v)
		}
		n = int64(v)
	case json.Number:
		parsed, perr := v.Int64()
		if perr != nil {
			return 0, true, errors.NewInvalidConfigError("%s must be an integer, got %q", key, v.String())
		}
		n = parsed
	default:
		return 0, true, errors.NewInvalidConfigError("%s must be an integer, got %T", key, raw)
	}

	if n < int64(min) || n > int64(max) {
		return 0, true, errors.NewInvalidConfigError("%s must be between %d and %d, got %d", key, min, max, n)
	}
	return int(n), true, nil
}

// Float returns the numeric option key, checked against [min, max].
func (o Options) Float(key string, min, max float64) (value float64, found bool, err error) {
	raw, ok := o[key]
	if !ok {
		return 0, false, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, perr := v.Float64()
		if perr != nil {
			return 0, true, errors.NewInvalidConfigError("%s must be a number, got %q", key, v.String())
		}
		f = parsed
	default:
		return 0, true, errors.NewInvalidConfigError("%s must be a number, got %T", key, raw)
	}

	if math.IsNaN(f) || f < min || f > max {
		return 0, true, errors.NewInvalidConfigError("%s must be between %g and %g, got %g", key, min, max, f)
	}
	return f, true, nil
}

// Bool returns the boolean option key.
func (o Options) Bool(key string) (value bool, found bool, err error) {
	raw, ok := o[key]
	if !ok {
		return false, false, nil
	}
	b, isBool := raw.(bool)
	if !isBool {
		return false, true, errors.NewInvalidConfigError("%s must be a boolean, got %T", key, raw)
	}
	return b, true, nil
}

// String returns the non-empty string option key.
func (o Options) String(key string) (value string, found bool, err error) {
	raw, ok := o[key]
	if !ok {
		return "", false, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", true, errors.NewInvalidConfigError("%s must be a string, got %T", key, raw)
	}
	if strings.TrimSpace(s) == "" {
		return "", true, errors.NewInvalidConfigError("%s must not be empty", key)
	}
	return s, true, nil
}

// Strings returns the non-empty string-list option key.
func (o Options) Strings(key string) (value []string, found bool, err error) {
	raw, ok := o[key]
	if !ok {
		return nil, false, nil
	}

	var out []string
	switch v := raw.(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for i, item := range v {
			s, isString := item.(string)
			if !isString {
				return nil, true, errors.NewInvalidConfigError("%s[%d] must be a string, got %T", key, i, item)
			}
			out = append(out, s)
		}
	default:
		return nil, true, errors.NewInvalidConfigError("%s must be a list of strings, got %T", key, raw)
	}

	if len(out) == 0 {
		return nil, true, errors.NewInvalidConfigError("%s must not be empty", key)
	}
	for i, s := range out {
		if strings.TrimSpace(s) == "" {
			return nil, true, errors.NewInvalidConfigError("%s[%d] must not be empty", key, i)
		}
	}
	return out, true, nil
}
