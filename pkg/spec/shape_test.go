package spec

import (
	"reflect"
	"testing"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

func TestAcceptsShape(t *testing.T) {
	explicit := types.TensorSpec{Name: "raw", Axes: "bcyx", Shape: types.Shape{Fixed: []int{1, 3, types.Wildcard, 224}}}
	parametrized := types.TensorSpec{Name: "raw", Axes: "bcyx", Shape: types.Shape{Min: []int{1, 1, 64, 64}, Step: []int{0, 0, 16, 16}}}
	tests := []struct {
		name   string
		tensor types.TensorSpec
		shape  []int
		want   bool
	}{
		{name: "explicit", tensor: explicit, shape: []int{1, 3, 100, 224}, want: true},
		{name: "explicit wrong size", tensor: explicit, shape: []int{1, 3, 100, 200}},
		{name: "explicit wrong rank", tensor: explicit, shape: []int{1, 3, 224}},
		{name: "parametrized min", tensor: parametrized, shape: []int{1, 1, 64, 64}, want: true},
		{name: "parametrized step", tensor: parametrized, shape: []int{1, 1, 96, 128}, want: true},
		{name: "parametrized off step", tensor: parametrized, shape: []int{1, 1, 72, 64}},
		{name: "parametrized below min", tensor: parametrized, shape: []int{1, 1, 48, 64}},
		{name: "parametrized fixed axis", tensor: parametrized, shape: []int{2, 1, 64, 64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AcceptsShape(tt.tensor, tt.shape)
			if tt.want && err != nil {
				t.Errorf("AcceptsShape() error = %v", err)
			}
			if !tt.want && !errors.IsErrCode(err, errors.ErrCodeShapeMismatch) {
				t.Errorf("AcceptsShape() error = %v, want %s", err, errors.ErrCodeShapeMismatch)
			}
		})
	}
}

func TestOutputShapes(t *testing.T) {
	desc := &types.ResourceDescriptor{
		Inputs: []types.TensorSpec{{Name: "raw", Axes: "bcyx", Shape: types.Shape{Min: []int{1, 1, 64, 64}, Step: []int{0, 0, 16, 16}}}},
		Outputs: []types.TensorSpec{
			{Name: "mask", Axes: "bcyx", Shape: types.Shape{ReferenceTensor: "raw", Scale: []float64{1, 0, 0.5, 0.5}, Offset: []float64{0, 1.5, -4, -4}}},
			{Name: "features", Axes: "bc", Shape: types.Shape{Fixed: []int{1, 1024}}},
		},
	}
	got, err := OutputShapes(desc, map[string][]int{"raw": {1, 1, 128, 96}})
	if err != nil {
		t.Fatalf("OutputShapes() error = %v", err)
	}
	want := map[string][]int{
		"mask":     {1, 3, 56, 40},
		"features": {1, 1024},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("OutputShapes() = %v, want %v", got, want)
	}

	_, err = OutputShapes(desc, map[string][]int{})
	if !errors.IsErrCode(err, errors.ErrCodeShapeMismatch) {
		t.Errorf("OutputShapes() without reference error = %v, want %s", err, errors.ErrCodeShapeMismatch)
	}
}

func TestMatchShape(t *testing.T) {
	if !MatchShape([]int{1, types.Wildcard}, []int{1, 7}) {
		t.Errorf("MatchShape() with wildcard = false")
	}
	if MatchShape([]int{1, 28}, []int{1, 27}) {
		t.Errorf("MatchShape() with different size = true")
	}
	if MatchShape([]int{1, 28}, []int{1, 28, 1}) {
		t.Errorf("MatchShape() with different rank = true")
	}
}
