package processing

import (
	"fmt"
	"strings"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/tensor"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

// Pipeline is the compiled list of processing steps of one tensor.
type Pipeline struct {
	Kind   Kind
	Tensor string
	Axes   string
	Steps  []Step
}

// Compile parses the pre- or postprocessing steps declared on spec and checks them
// against the tensor axes.
func Compile(kind Kind, spec types.TensorSpec) (*Pipeline, error) {
	declared := spec.Preprocessing
	if kind == Postprocessing {
		declared = spec.Postprocessing
	}
	p := &Pipeline{Kind: kind, Tensor: spec.Name, Axes: spec.Axes}
	for i, decl := range declared {
		step, err := Parse(kind, decl)
		if err != nil {
			return nil, fmt.Errorf("%s %s[%d]: %w", spec.Name, kind, i, err)
		}
		if as, ok := step.(axesStep); ok {
			for _, a := range as.TargetAxes() {
				if !strings.ContainsRune(spec.Axes, a) {
					return nil, fmt.Errorf("%s %s[%d]: %w", spec.Name, kind, i,
						errors.NewInvalidArgumentError(step.Name(), fmt.Sprintf("axes %q is not a subset of tensor axes %q", as.TargetAxes(), spec.Axes)))
				}
			}
		}
		if sl, ok := step.(ScaleLinear); ok {
			if n, ok := fixedGroups(spec, sl.Axes); ok && sl.Groups() > 1 && sl.Groups() != n {
				return nil, fmt.Errorf("%s %s[%d]: %w", spec.Name, kind, i,
					errors.NewInvalidArgumentError(step.Name(), fmt.Sprintf("%d gain/offset values for %d groups", sl.Groups(), n)))
			}
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

// fixedGroups counts the groups a per-group step sees, when the shape fixes every kept axis.
func fixedGroups(spec types.TensorSpec, axes string) (int, bool) {
	if spec.Shape.Kind() != types.ShapeExplicit || len(spec.Shape.Fixed) != len(spec.Axes) {
		return 0, false
	}
	n := 1
	for i, a := range spec.Axes {
		if a == 'b' || strings.ContainsRune(axes, a) {
			continue
		}
		if spec.Shape.Fixed[i] == types.Wildcard {
			return 0, false
		}
		n *= spec.Shape.Fixed[i]
	}
	return n, true
}

// References lists the tensors the pipeline reads besides its own.
func (p *Pipeline) References() []string {
	refs := []string{}
	for _, s := range p.Steps {
		if rs, ok := s.(referenceStep); ok && rs.Reference() != "" {
			refs = append(refs, rs.Reference())
		}
	}
	return refs
}

// Apply runs every step in declared order. The input tensor is left untouched.
func (p *Pipeline) Apply(t *tensor.Tensor, refs map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	if t.Axes == "" {
		t = &tensor.Tensor{Axes: p.Axes, Shape: t.Shape, Data: t.Data}
	}
	if t.Axes != p.Axes {
		return nil, errors.NewShapeMismatchError(errors.FieldError{
			Path:    p.Tensor,
			Message: fmt.Sprintf("tensor axes %q do not match declared axes %q", t.Axes, p.Axes),
		})
	}
	if len(t.Shape) != len(p.Axes) {
		return nil, errors.NewShapeMismatchError(errors.FieldError{
			Path:    p.Tensor,
			Message: fmt.Sprintf("tensor shape %v does not match axes %q", t.Shape, p.Axes),
		})
	}
	out := t
	for i, step := range p.Steps {
		next, err := step.Apply(out, refs)
		if err != nil {
			return nil, fmt.Errorf("%s %s[%d]: %w", p.Tensor, p.Kind, i, err)
		}
		out = next
	}
	if out == t {
		out = t.Clone()
	}
	return out, nil
}
