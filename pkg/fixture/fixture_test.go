package fixture

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/resolver"
	"github.com/mese79/spec-bioimage-io/pkg/spec"
	"github.com/mese79/spec-bioimage-io/pkg/tensor"
)

const manifest = `
format_version: 0.4.9
type: model
name: fixture-check
version: 0.1.0
license: MIT
authors:
  - name: Jane Doe
timestamp: "2022-05-01T10:00:00Z"
inputs:
  - name: raw
    axes: bcyx
    data_type: float32
    shape:
      min: [1, 1, 64, 64]
      step: [0, 0, 16, 16]
    preprocessing:
      - name: zero_mean_unit_variance
        kwargs:
          mode: per_sample
          axes: yx
outputs:
  - name: mask
    axes: bcyx
    data_type: float32
    shape:
      reference_tensor: raw
      scale: [1, 1, 0.5, 0.5]
      offset: [0, 0, 0, 0]
  - name: features
    axes: bc
    data_type: float32
    shape: [1, 16]
test_inputs: [test_input.npy]
test_outputs: [test_output_mask.npy, test_output_features.npy]
weights:
  onnx:
    source: weights.onnx
    sha256: 9c0a8d6c1b2e4f3a5d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c
    opset_version: 12
`

func writeNPY(t *testing.T, dir, name string, shape []int) {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	tt := &tensor.Tensor{Shape: shape, Data: make([]float64, n)}
	for i := range tt.Data {
		tt.Data[i] = float64(i % 7)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := tensor.WriteNPY(f, tt, "float32"); err != nil {
		t.Fatal(err)
	}
}

func setup(t *testing.T, input, mask, features []int) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, spec.ManifestFileName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	writeNPY(t, dir, "test_input.npy", input)
	writeNPY(t, dir, "test_output_mask.npy", mask)
	writeNPY(t, dir, "test_output_features.npy", features)
	return dir
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		input    []int
		mask     []int
		features []int
		wantErr  errors.ErrCode
	}{
		{name: "match", input: []int{1, 1, 64, 80}, mask: []int{1, 1, 32, 40}, features: []int{1, 16}},
		{name: "output mismatch", input: []int{1, 1, 64, 80}, mask: []int{1, 1, 64, 80}, features: []int{1, 16}, wantErr: errors.ErrCodeShapeMismatch},
		{name: "fixed output mismatch", input: []int{1, 1, 64, 64}, mask: []int{1, 1, 32, 32}, features: []int{1, 15}, wantErr: errors.ErrCodeShapeMismatch},
		{name: "input off step", input: []int{1, 1, 70, 64}, mask: []int{1, 1, 35, 32}, features: []int{1, 16}, wantErr: errors.ErrCodeShapeMismatch},
		{name: "input rank", input: []int{1, 64, 64}, mask: []int{1, 1, 32, 32}, features: []int{1, 16}, wantErr: errors.ErrCodeShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setup(t, tt.input, tt.mask, tt.features)
			desc, err := spec.Load(context.Background(), dir)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			report, err := Check(context.Background(), desc, resolver.New(desc.Root, nil))
			if tt.wantErr != "" {
				if !errors.IsErrCode(err, tt.wantErr) {
					t.Fatalf("Check() error = %v, want %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			want := &Report{
				Inputs: []Result{{Name: "raw", File: "test_input.npy", Shape: []int{1, 1, 64, 80}, Expected: []int{1, 1, 64, 64}, OK: true}},
				Outputs: []Result{
					{Name: "mask", File: "test_output_mask.npy", Shape: []int{1, 1, 32, 40}, Expected: []int{1, 1, 32, 40}, OK: true},
					{Name: "features", File: "test_output_features.npy", Shape: []int{1, 16}, Expected: []int{1, 16}, OK: true},
				},
			}
			if !reflect.DeepEqual(report, want) {
				t.Errorf("Check() = %+v, want %+v", report, want)
			}
		})
	}
}

func TestCheckMissingFixture(t *testing.T) {
	dir := setup(t, []int{1, 1, 64, 64}, []int{1, 1, 32, 32}, []int{1, 16})
	if err := os.Remove(filepath.Join(dir, "test_output_features.npy")); err != nil {
		t.Fatal(err)
	}
	desc, err := spec.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := Check(context.Background(), desc, resolver.New(desc.Root, nil)); !errors.IsErrCode(err, errors.ErrCodeMissingFile) {
		t.Errorf("Check() error = %v, want %s", err, errors.ErrCodeMissingFile)
	}
}

func TestCheckExplicitShapes(t *testing.T) {
	manifest, err := os.ReadFile(filepath.Join("..", "spec", "testdata", spec.ManifestFileName))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name     string
		features []int
		wantErr  errors.ErrCode
	}{
		{name: "match", features: []int{1, 1024}},
		{name: "features mismatch", features: []int{1, 1000}, wantErr: errors.ErrCodeShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, spec.ManifestFileName), manifest, 0o644); err != nil {
				t.Fatal(err)
			}
			writeNPY(t, dir, "test_input.npy", []int{1, 3, 224, 224})
			writeNPY(t, dir, "test_output_probabilities.npy", []int{1, 28})
			writeNPY(t, dir, "test_output_features.npy", tt.features)

			desc, err := spec.Load(context.Background(), dir)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			report, err := Check(context.Background(), desc, resolver.New(desc.Root, nil))
			if tt.wantErr != "" {
				if !errors.IsErrCode(err, tt.wantErr) {
					t.Fatalf("Check() error = %v, want %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			want := []Result{
				{Name: "probabilities", File: "test_output_probabilities.npy", Shape: []int{1, 28}, Expected: []int{1, 28}, OK: true},
				{Name: "features", File: "test_output_features.npy", Shape: []int{1, 1024}, Expected: []int{1, 1024}, OK: true},
			}
			if !reflect.DeepEqual(report.Outputs, want) {
				t.Errorf("Check() outputs = %+v, want %+v", report.Outputs, want)
			}
		})
	}
}
