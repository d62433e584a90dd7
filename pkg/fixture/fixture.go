package fixture

import (
	"context"
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/processing"
	"github.com/mese79/spec-bioimage-io/pkg/resolver"
	"github.com/mese79/spec-bioimage-io/pkg/spec"
	"github.com/mese79/spec-bioimage-io/pkg/tensor"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

type Report struct {
	Inputs  []Result `json:"inputs"`
	Outputs []Result `json:"outputs"`
}

type Result struct {
	Name  string `json:"name"`
	File  string `json:"file"`
	Shape []int  `json:"shape"`
	// Expected is the declared or derived shape, types.Wildcard matches any size.
	Expected []int `json:"expected,omitempty"`
	OK       bool  `json:"ok"`
}

// Check reads the test inputs, runs their preprocessing and compares the output
// shapes derived from them with the shapes of the test outputs. Values are not
// compared. The report covers everything checked before the first failing input.
func Check(ctx context.Context, desc *types.ResourceDescriptor, r *resolver.Resolver) (*Report, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("model", desc.Name)
	report := &Report{}

	if len(desc.TestInputs) != len(desc.Inputs) {
		return report, errors.NewSchemaError(errors.FieldError{
			Path:    "test_inputs",
			Message: fmt.Sprintf("expected %d entries, got %d", len(desc.Inputs), len(desc.TestInputs)),
		})
	}
	if len(desc.TestOutputs) != len(desc.Outputs) {
		return report, errors.NewSchemaError(errors.FieldError{
			Path:    "test_outputs",
			Message: fmt.Sprintf("expected %d entries, got %d", len(desc.Outputs), len(desc.TestOutputs)),
		})
	}

	raw := map[string]*tensor.Tensor{}
	for i, in := range desc.Inputs {
		file := desc.TestInputs[i]
		t, err := readTensor(ctx, r, file)
		if err != nil {
			return report, err
		}
		result := Result{Name: in.Name, File: file, Shape: t.Shape, Expected: expectedInputShape(in)}
		if err := spec.AcceptsShape(in, t.Shape); err != nil {
			report.Inputs = append(report.Inputs, result)
			return report, fmt.Errorf("%s: %w", file, err)
		}
		result.OK = true
		report.Inputs = append(report.Inputs, result)
		t.Axes = in.Axes
		raw[in.Name] = t
	}

	shapes := map[string][]int{}
	for _, in := range desc.Inputs {
		p, err := processing.Compile(processing.Preprocessing, in)
		if err != nil {
			return report, err
		}
		out, err := p.Apply(raw[in.Name], raw)
		if err != nil {
			return report, err
		}
		log.V(1).Info("preprocessed", "tensor", in.Name, "steps", len(p.Steps), "shape", out.Shape)
		shapes[in.Name] = out.Shape
	}

	expected, err := spec.OutputShapes(desc, shapes)
	if err != nil {
		return report, err
	}
	var mismatches []errors.FieldError
	for j, out := range desc.Outputs {
		file := desc.TestOutputs[j]
		var shape []int
		if err := r.With(ctx, file, "", func(rs io.ReadSeeker) error {
			s, _, err := tensor.ReadNPYShape(rs)
			shape = s
			return err
		}); err != nil {
			return report, err
		}
		want := expected[out.Name]
		result := Result{Name: out.Name, File: file, Shape: shape, Expected: want, OK: spec.MatchShape(want, shape)}
		report.Outputs = append(report.Outputs, result)
		if !result.OK {
			mismatches = append(mismatches, errors.FieldError{
				Path:    fmt.Sprintf("test_outputs[%d]", j),
				Message: fmt.Sprintf("%s has shape %v, expected %v for %s", file, shape, want, out.Name),
			})
		}
	}
	if len(mismatches) > 0 {
		return report, errors.NewShapeMismatchError(mismatches...)
	}
	log.Info("fixtures match", "inputs", len(report.Inputs), "outputs", len(report.Outputs))
	return report, nil
}

func readTensor(ctx context.Context, r *resolver.Resolver, file string) (*tensor.Tensor, error) {
	var t *tensor.Tensor
	err := r.With(ctx, file, "", func(rs io.ReadSeeker) error {
		var err error
		t, err = tensor.ReadNPY(rs, "")
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		return nil
	})
	return t, err
}

func expectedInputShape(in types.TensorSpec) []int {
	switch in.Shape.Kind() {
	case types.ShapeExplicit:
		return in.Shape.Fixed
	case types.ShapeParametrized:
		return in.Shape.Min
	}
	return nil
}
