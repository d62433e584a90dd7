package tensor

import (
	"bytes"
	"reflect"
	"testing"
)

func TestGroups(t *testing.T) {
	tt, err := FromData("bcx", []int{1, 2, 3}, []float64{0, 1, 2, 3, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		reduce string
		skip   string
		want   [][]int
	}{
		{name: "per channel", reduce: "x", skip: "b", want: [][]int{{0, 1, 2}, {3, 4, 5}}},
		{name: "per column", reduce: "c", skip: "b", want: [][]int{{0, 3}, {1, 4}, {2, 5}}},
		{name: "all", reduce: "bcx", want: [][]int{{0, 1, 2, 3, 4, 5}}},
		{name: "none", reduce: "", want: [][]int{{0}, {1}, {2}, {3}, {4}, {5}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tt.GroupsExcept(tc.reduce, tc.skip)
			if err != nil {
				t.Fatalf("GroupsExcept() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("GroupsExcept() = %v, want %v", got, tc.want)
			}
		})
	}
	if _, err := tt.Groups("z"); err == nil {
		t.Errorf("Groups() with unknown axis should fail")
	}
}

func TestNew(t *testing.T) {
	if _, err := New("bcx", []int{1, 2}); err == nil {
		t.Errorf("New() with mismatched axes should fail")
	}
	if _, err := FromData("x", []int{3}, []float64{1, 2}); err == nil {
		t.Errorf("FromData() with short data should fail")
	}
}

func TestNPY(t *testing.T) {
	tests := []struct {
		name  string
		dtype string
		in    *Tensor
	}{
		{name: "float32 2d", dtype: "float32", in: &Tensor{Axes: "bc", Shape: []int{1, 3}, Data: []float64{0.5, 1, -2}}},
		{name: "float64 1d", dtype: "float64", in: &Tensor{Axes: "x", Shape: []int{2}, Data: []float64{0.1, 0.2}}},
		{name: "float32 4d", dtype: "float32", in: &Tensor{Axes: "bcyx", Shape: []int{1, 1, 2, 2}, Data: []float64{1, 2, 3, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			if err := WriteNPY(buf, tt.in, tt.dtype); err != nil {
				t.Fatalf("WriteNPY() error = %v", err)
			}
			shape, _, err := ReadNPYShape(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("ReadNPYShape() error = %v", err)
			}
			if !reflect.DeepEqual(shape, tt.in.Shape) {
				t.Errorf("ReadNPYShape() = %v, want %v", shape, tt.in.Shape)
			}
			got, err := ReadNPY(bytes.NewReader(buf.Bytes()), tt.in.Axes)
			if err != nil {
				t.Fatalf("ReadNPY() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.in) {
				t.Errorf("ReadNPY() = %v, want %v", got, tt.in)
			}
		})
	}
}

func TestReadNPYAxesMismatch(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteNPY(buf, &Tensor{Axes: "bc", Shape: []int{1, 2}, Data: []float64{1, 2}}, "float32"); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadNPY(buf, "bcyx"); err == nil {
		t.Errorf("ReadNPY() with mismatched axes should fail")
	}
}
