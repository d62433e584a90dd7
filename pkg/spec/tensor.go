package spec

import (
	"math"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/mese79/spec-bioimage-io/pkg/processing"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

func (v *validator) tensor(path string, raw any, input bool) types.TensorSpec {
	spec := types.TensorSpec{}
	o, ok := v.object(path, raw)
	if !ok {
		return spec
	}
	spec.Name = o.str("name", true)
	spec.Description = o.str("description", false)
	spec.Axes = o.str("axes", true)
	axesOK := v.axes(o.at("axes"), spec.Axes)
	spec.DataType = o.str("data_type", true)
	if spec.DataType != "" && !slices.Contains(types.DataTypes, spec.DataType) {
		v.errorf(o.at("data_type"), "unknown data type %q, expected one of %v", spec.DataType, types.DataTypes)
	}
	spec.DataRange = v.dataRange(o)

	if val, ok := o.value("shape", true); ok {
		spec.Shape = v.shape(o.at("shape"), val, input)
		parsed := spec.Shape.Fixed != nil || spec.Shape.Min != nil || spec.Shape.ReferenceTensor != ""
		if parsed && axesOK && spec.Axes != "" && spec.Shape.Len() != len(spec.Axes) {
			v.shapef(o.at("shape"), "%d dimensions for axes %q", spec.Shape.Len(), spec.Axes)
		}
	}

	if input {
		spec.Preprocessing = v.steps(o, "preprocessing")
		v.batchSize(o.at("shape"), spec)
	} else {
		spec.Postprocessing = v.steps(o, "postprocessing")
		if l, ok := o.list("halo", false); ok {
			halo := []int{}
			for i, item := range l {
				if n, ok := v.intValue(indexPath(o.at("halo"), i), item); ok {
					if n < 0 {
						v.errorf(indexPath(o.at("halo"), i), "must not be negative")
					}
					halo = append(halo, n)
				}
			}
			if len(l) != len(spec.Axes) {
				v.shapef(o.at("halo"), "%d entries for axes %q", len(l), spec.Axes)
			}
			spec.Halo = nilIfEmpty(halo)
		}
	}
	o.finish()
	return spec
}

func (v *validator) axes(path string, axes string) bool {
	ok := true
	for i := 0; i < len(axes); i++ {
		switch {
		case !strings.ContainsRune(types.AxisCodes, rune(axes[i])):
			v.errorf(path, "invalid axis %q, expected one of %q", axes[i], types.AxisCodes)
			ok = false
		case strings.IndexByte(axes, axes[i]) != i:
			v.errorf(path, "duplicate axis %q", axes[i])
			ok = false
		}
	}
	return ok
}

func (v *validator) dataRange(o *object) *types.DataRange {
	l, ok := o.list("data_range", false)
	if !ok {
		return nil
	}
	path := o.at("data_range")
	if len(l) != 2 {
		v.errorf(path, "expected [min, max], got %d values", len(l))
		return nil
	}
	bound := func(i int, unbounded float64) float64 {
		switch x := l[i].(type) {
		case nil:
			return unbounded
		case string:
			switch strings.ToLower(x) {
			case "inf", "+inf", ".inf":
				return math.Inf(1)
			case "-inf", "-.inf":
				return math.Inf(-1)
			case "nan", ".nan":
				return unbounded
			}
		default:
			if f, ok := toFloat(x); ok {
				return f
			}
		}
		v.errorf(indexPath(path, i), "expected a number, got %s", typeName(l[i]))
		return unbounded
	}
	r := &types.DataRange{Min: bound(0, math.Inf(-1)), Max: bound(1, math.Inf(1))}
	if r.Min > r.Max {
		v.errorf(path, "min %v is greater than max %v", r.Min, r.Max)
	}
	return r
}

func (v *validator) ints(path string, raw any, wildcard bool) []int {
	l, ok := raw.([]any)
	if !ok {
		v.errorf(path, "expected a list of integers, got %s", typeName(raw))
		return nil
	}
	out := make([]int, 0, len(l))
	for i, item := range l {
		if item == nil && wildcard {
			out = append(out, types.Wildcard)
			continue
		}
		n, ok := v.intValue(indexPath(path, i), item)
		if !ok {
			out = append(out, 0)
			continue
		}
		if n < 0 {
			v.errorf(indexPath(path, i), "must not be negative")
		}
		out = append(out, n)
	}
	return out
}

func (v *validator) floats(path string, raw any) []float64 {
	l, ok := raw.([]any)
	if !ok {
		v.errorf(path, "expected a list of numbers, got %s", typeName(raw))
		return nil
	}
	out := make([]float64, 0, len(l))
	for i, item := range l {
		f, ok := toFloat(item)
		if !ok {
			v.errorf(indexPath(path, i), "expected a number, got %s", typeName(item))
		}
		out = append(out, f)
	}
	return out
}

// shape reads an explicit list, a parametrized input shape or an implicit output shape.
func (v *validator) shape(path string, raw any, input bool) types.Shape {
	if _, ok := raw.([]any); ok {
		return types.Shape{Fixed: v.ints(path, raw, true)}
	}
	o, ok := v.object(path, raw)
	if !ok {
		return types.Shape{}
	}
	defer o.finish()
	if input {
		minVal, hasMin := o.value("min", true)
		stepVal, hasStep := o.value("step", true)
		if !hasMin || !hasStep {
			return types.Shape{}
		}
		s := types.Shape{Min: v.ints(o.at("min"), minVal, false), Step: v.ints(o.at("step"), stepVal, false)}
		if s.Min == nil {
			s.Min = []int{}
		}
		if len(s.Step) != len(s.Min) {
			v.shapef(o.at("step"), "%d steps for %d dimensions", len(s.Step), len(s.Min))
		}
		return s
	}
	s := types.Shape{ReferenceTensor: o.str("reference_tensor", true)}
	scaleVal, hasScale := o.value("scale", true)
	offsetVal, hasOffset := o.value("offset", true)
	if !hasScale || !hasOffset || s.ReferenceTensor == "" {
		return types.Shape{}
	}
	s.Scale, s.Offset = v.floats(o.at("scale"), scaleVal), v.floats(o.at("offset"), offsetVal)
	if len(s.Offset) != len(s.Scale) {
		v.shapef(o.at("offset"), "%d offsets for %d dimensions", len(s.Offset), len(s.Scale))
	}
	for i, off := range s.Offset {
		if off*2 != math.Trunc(off*2) {
			v.errorf(indexPath(o.at("offset"), i), "offset %v must be a multiple of 0.5", off)
		}
	}
	return s
}

// batchSize requires inputs to take exactly one sample along the batch axis.
func (v *validator) batchSize(path string, spec types.TensorSpec) {
	b := spec.AxisIndex('b')
	if b < 0 || spec.Shape.Len() != len(spec.Axes) {
		return
	}
	switch spec.Shape.Kind() {
	case types.ShapeExplicit:
		if spec.Shape.Fixed[b] != 1 {
			v.errorf(indexPath(path, b), "batch size must be 1")
		}
	case types.ShapeParametrized:
		if b < len(spec.Shape.Step) && spec.Shape.Step[b] != 0 {
			v.errorf(keyPath(path, "step"), "step must be 0 along the batch axis")
		}
		if spec.Shape.Min[b] != 1 {
			v.errorf(keyPath(path, "min"), "batch size must be 1")
		}
	}
}

func (v *validator) steps(o *object, key string) []types.ProcessingStep {
	l, ok := o.list(key, false)
	if !ok {
		return nil
	}
	steps := []types.ProcessingStep{}
	for i, item := range l {
		s, ok := v.object(indexPath(o.at(key), i), item)
		if !ok {
			continue
		}
		step := types.ProcessingStep{Name: s.str("name", true), Kwargs: s.mapping("kwargs")}
		s.finish()
		steps = append(steps, step)
	}
	return nilIfEmpty(steps)
}

// checkProcessing compiles every declared pipeline so step and argument errors surface
// during validation.
func (v *validator) checkProcessing(desc *types.ResourceDescriptor) {
	compile := func(kind processing.Kind, group string, i int, t types.TensorSpec) {
		p, err := processing.Compile(kind, t)
		if err != nil {
			if v.procErr == nil {
				v.procErr = err
			}
			return
		}
		for _, ref := range p.References() {
			if _, ok := desc.InputTensor(ref); !ok {
				v.errorf(indexPath(group, i)+"."+string(kind), "reference tensor %q is not an input tensor", ref)
			}
		}
	}
	for i, t := range desc.Inputs {
		if t.Axes != "" && t.Preprocessing != nil {
			compile(processing.Preprocessing, "inputs", i, t)
		}
	}
	for i, t := range desc.Outputs {
		if t.Axes != "" && t.Postprocessing != nil {
			compile(processing.Postprocessing, "outputs", i, t)
		}
	}
}
