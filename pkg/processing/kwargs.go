package processing

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

// kwargs reads the keyword arguments of one step and records the first problem found.
type kwargs struct {
	step string
	m    map[string]any
	seen map[string]bool
	err  error
}

func newKwargs(step string, m map[string]any) *kwargs {
	return &kwargs{step: step, m: m, seen: map[string]bool{}}
}

func (k *kwargs) fail(format string, args ...any) {
	if k.err == nil {
		k.err = errors.NewInvalidArgumentError(k.step, fmt.Sprintf(format, args...))
	}
}

func (k *kwargs) get(key string) (any, bool) {
	k.seen[key] = true
	v, ok := k.m[key]
	if ok && v == nil {
		return nil, false
	}
	return v, ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
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

func (k *kwargs) number(key string, required bool, def float64) float64 {
	v, ok := k.get(key)
	if !ok {
		if required {
			k.fail("missing required argument %q", key)
		}
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		k.fail("argument %q must be a number, got %T", key, v)
		return def
	}
	return f
}

// numbers reads a scalar or a list of numbers. A scalar is returned as a one element slice.
func (k *kwargs) numbers(key string) ([]float64, bool) {
	v, ok := k.get(key)
	if !ok {
		return nil, false
	}
	if f, ok := toFloat(v); ok {
		return []float64{f}, true
	}
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		k.fail("argument %q must be a number or a non-empty list of numbers", key)
		return nil, false
	}
	out := make([]float64, len(list))
	for i, item := range list {
		f, ok := toFloat(item)
		if !ok {
			k.fail("argument %q[%d] must be a number, got %T", key, i, item)
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func (k *kwargs) str(key string, required bool) string {
	v, ok := k.get(key)
	if !ok {
		if required {
			k.fail("missing required argument %q", key)
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		k.fail("argument %q must be a string, got %T", key, v)
		return ""
	}
	return s
}

func (k *kwargs) mode(allowed ...Mode) Mode {
	m := Mode(k.str("mode", true))
	if k.err != nil {
		return m
	}
	for _, a := range allowed {
		if m == a {
			return m
		}
	}
	k.fail("mode %q is not one of %v", m, allowed)
	return m
}

// axes reads the optional axes argument. The batch axis is never a valid target.
func (k *kwargs) axes() string {
	axes := k.str("axes", false)
	for i := 0; i < len(axes); i++ {
		switch {
		case axes[i] == 'b':
			k.fail("axes %q must not contain the batch axis", axes)
		case !strings.ContainsRune(types.AxisCodes, rune(axes[i])):
			k.fail("invalid axis %q in %q", axes[i], axes)
		case strings.IndexByte(axes, axes[i]) != i:
			k.fail("duplicate axis %q in %q", axes[i], axes)
		}
	}
	return axes
}

// done reports the first problem, including any argument the step does not know.
func (k *kwargs) done() error {
	if k.err != nil {
		return k.err
	}
	unknown := []string{}
	for key := range k.m {
		if !k.seen[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.NewInvalidArgumentError(k.step, fmt.Sprintf("unexpected arguments %v", unknown))
	}
	return nil
}
