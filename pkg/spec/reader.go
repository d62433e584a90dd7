package spec

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
)

// validator collects every problem of a manifest instead of stopping at the first.
type validator struct {
	opts      options
	errs      []errors.FieldError
	shapeErrs []errors.FieldError
	procErr   error
}

func (v *validator) errorf(path string, format string, args ...any) {
	v.errs = append(v.errs, errors.FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) shapef(path string, format string, args ...any) {
	v.shapeErrs = append(v.shapeErrs, errors.FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) warnf(path string, format string, args ...any) {
	v.opts.log.Info("manifest warning", "field", path, "warning", fmt.Sprintf(format, args...))
}

// err picks the most structural failure: shape mismatches first, then field errors,
// then processing step errors.
func (v *validator) err() error {
	switch {
	case len(v.shapeErrs) > 0:
		return errors.NewShapeMismatchError(v.shapeErrs...)
	case len(v.errs) > 0:
		return errors.NewSchemaError(v.errs...)
	default:
		return v.procErr
	}
}

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func keyPath(path string, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

type object struct {
	v     *validator
	path  string
	m     map[string]any
	known map[string]bool
}

func (v *validator) object(path string, raw any) (*object, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		v.errorf(path, "expected a mapping, got %s", typeName(raw))
		return nil, false
	}
	return &object{v: v, path: path, m: m, known: map[string]bool{}}, true
}

func typeName(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, json.Number:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", raw)
	}
}

func (o *object) at(key string) string {
	return keyPath(o.path, key)
}

// allow marks keys that are accepted but not modelled.
func (o *object) allow(keys ...string) {
	for _, k := range keys {
		o.known[k] = true
	}
}

// value returns a present, non-null value.
func (o *object) value(key string, required bool) (any, bool) {
	o.known[key] = true
	val, ok := o.m[key]
	if !ok || val == nil {
		if required {
			o.v.errorf(o.at(key), "required")
		}
		return nil, false
	}
	return val, true
}

func (o *object) str(key string, required bool) string {
	val, ok := o.value(key, required)
	if !ok {
		return ""
	}
	s, ok := val.(string)
	if !ok {
		o.v.errorf(o.at(key), "expected a string, got %s", typeName(val))
		return ""
	}
	if required && s == "" {
		o.v.errorf(o.at(key), "must not be empty")
	}
	return s
}

// version reads a string that YAML may have decoded as a number, e.g. "tensorflow_version: 1.15".
// Numbers decoded by Unmarshal keep their literal text.
func (o *object) version(key string, required bool) string {
	val, ok := o.value(key, required)
	if !ok {
		return ""
	}
	switch x := val.(type) {
	case string:
		if required && x == "" {
			o.v.errorf(o.at(key), "must not be empty")
		}
		return x
	case json.Number:
		return string(x)
	default:
		if f, ok := toFloat(val); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		o.v.errorf(o.at(key), "expected a string, got %s", typeName(val))
		return ""
	}
}

func toFloat(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (v *validator) intValue(path string, val any) (int, bool) {
	f, ok := toFloat(val)
	if !ok {
		v.errorf(path, "expected an integer, got %s", typeName(val))
		return 0, false
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		v.errorf(path, "expected an integer, got %v", f)
		return 0, false
	}
	return int(f), true
}

func (o *object) int(key string, required bool) (int, bool) {
	val, ok := o.value(key, required)
	if !ok {
		return 0, false
	}
	return o.v.intValue(o.at(key), val)
}

func (o *object) list(key string, required bool) ([]any, bool) {
	val, ok := o.value(key, required)
	if !ok {
		return nil, false
	}
	l, ok := val.([]any)
	if !ok {
		o.v.errorf(o.at(key), "expected a list, got %s", typeName(val))
		return nil, false
	}
	return l, true
}

func (o *object) strList(key string) []string {
	l, ok := o.list(key, false)
	if !ok {
		return nil
	}
	out := []string{}
	for i, item := range l {
		s, ok := item.(string)
		if !ok {
			o.v.errorf(indexPath(o.at(key), i), "expected a string, got %s", typeName(item))
			continue
		}
		out = append(out, s)
	}
	return nilIfEmpty(out)
}

func (o *object) mapping(key string) map[string]any {
	val, ok := o.value(key, false)
	if !ok {
		return nil
	}
	m, ok := val.(map[string]any)
	if !ok {
		o.v.errorf(o.at(key), "expected a mapping, got %s", typeName(val))
		return nil
	}
	return normalizeMap(m)
}

// finish reports unknown keys in strict mode.
func (o *object) finish() {
	if !o.v.opts.rejectUnknownFields {
		return
	}
	unknown := []string{}
	for k := range o.m {
		if !o.known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		o.v.errorf(o.at(k), "unknown field")
	}
}

func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}

// normalizeMap detaches free-form values from the caller and gives them the types a
// YAML or JSON decoder produces, so a marshalled descriptor reads back identical.
func normalizeMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return m
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return m
	}
	return out
}
