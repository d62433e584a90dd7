package spec

import (
	"fmt"
	"math"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

// AcceptsShape checks a concrete input shape against the declared shape of an input tensor.
func AcceptsShape(t types.TensorSpec, shape []int) error {
	mismatch := func(format string, args ...any) error {
		return errors.NewShapeMismatchError(errors.FieldError{Path: t.Name, Message: fmt.Sprintf(format, args...)})
	}
	if len(shape) != len(t.Axes) {
		return mismatch("shape %v does not match axes %q", shape, t.Axes)
	}
	switch t.Shape.Kind() {
	case types.ShapeExplicit:
		for i, want := range t.Shape.Fixed {
			if want != types.Wildcard && shape[i] != want {
				return mismatch("shape %v does not match %v", shape, t.Shape.Fixed)
			}
		}
	case types.ShapeParametrized:
		for i := range shape {
			lo, step := t.Shape.Min[i], t.Shape.Step[i]
			if step == 0 && shape[i] != lo || step > 0 && (shape[i] < lo || (shape[i]-lo)%step != 0) {
				return mismatch("shape %v is not of the form min %v + k*step %v", shape, t.Shape.Min, t.Shape.Step)
			}
		}
	default:
		return mismatch("implicit shapes are only valid for outputs")
	}
	return nil
}

// OutputShapes derives the concrete output shapes from the shapes of the inputs, keyed
// by tensor name. Unconstrained dimensions of explicit shapes stay types.Wildcard.
func OutputShapes(desc *types.ResourceDescriptor, inputs map[string][]int) (map[string][]int, error) {
	out := map[string][]int{}
	for _, t := range desc.Outputs {
		switch t.Shape.Kind() {
		case types.ShapeImplicit:
			ref, ok := inputs[t.Shape.ReferenceTensor]
			if !ok {
				return nil, errors.NewShapeMismatchError(errors.FieldError{
					Path:    t.Name,
					Message: fmt.Sprintf("shape of reference tensor %q unknown", t.Shape.ReferenceTensor),
				})
			}
			if len(ref) != len(t.Shape.Scale) {
				return nil, errors.NewShapeMismatchError(errors.FieldError{
					Path:    t.Name,
					Message: fmt.Sprintf("reference shape %v does not match scale %v", ref, t.Shape.Scale),
				})
			}
			shape := make([]int, len(ref))
			for i := range ref {
				shape[i] = int(math.Round(float64(ref[i])*t.Shape.Scale[i] + 2*t.Shape.Offset[i]))
			}
			out[t.Name] = shape
		default:
			out[t.Name] = append([]int(nil), t.Shape.Fixed...)
		}
	}
	return out, nil
}

// MatchShape reports whether a concrete shape fits a derived one, where
// types.Wildcard matches any size.
func MatchShape(want, got []int) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != types.Wildcard && want[i] != got[i] {
			return false
		}
	}
	return true
}
