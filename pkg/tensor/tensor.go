package tensor

import (
	"fmt"
	"strings"
)

// Tensor is a dense row-major float64 array with named axes.
type Tensor struct {
	Axes  string
	Shape []int
	Data  []float64
}

func New(axes string, shape []int) (*Tensor, error) {
	if len(axes) != len(shape) {
		return nil, fmt.Errorf("axes %q do not match shape %v", axes, shape)
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= d
	}
	return &Tensor{Axes: axes, Shape: append([]int(nil), shape...), Data: make([]float64, n)}, nil
}

func FromData(axes string, shape []int, data []float64) (*Tensor, error) {
	t, err := New(axes, shape)
	if err != nil {
		return nil, err
	}
	if len(data) != len(t.Data) {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	copy(t.Data, data)
	return t, nil
}

func (t *Tensor) Len() int {
	return len(t.Data)
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Axes:  t.Axes,
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

// Map returns a new tensor with fn applied to every element.
func (t *Tensor) Map(fn func(float64) float64) *Tensor {
	out := t.Clone()
	for i, v := range out.Data {
		out.Data[i] = fn(v)
	}
	return out
}

func (t *Tensor) strides() []int {
	strides := make([]int, len(t.Shape))
	acc := 1
	for i := len(t.Shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= t.Shape[i]
	}
	return strides
}

// Groups partitions the flat element indices by their coordinates on the axes not
// listed in reduce. Elements of one group differ only along the reduce axes. Groups are
// ordered row-major over the kept axes.
func (t *Tensor) Groups(reduce string) ([][]int, error) {
	for i := 0; i < len(reduce); i++ {
		if !strings.ContainsRune(t.Axes, rune(reduce[i])) {
			return nil, fmt.Errorf("axis %q not in tensor axes %q", reduce[i], t.Axes)
		}
	}
	strides := t.strides()
	ngroups := 1
	for i := range t.Shape {
		if !strings.ContainsRune(reduce, rune(t.Axes[i])) {
			ngroups *= t.Shape[i]
		}
	}
	groups := make([][]int, ngroups)
	for flat := range t.Data {
		g := 0
		rest := flat
		for i := range t.Shape {
			coord := rest / strides[i]
			rest %= strides[i]
			if !strings.ContainsRune(reduce, rune(t.Axes[i])) {
				g = g*t.Shape[i] + coord
			}
		}
		groups[g] = append(groups[g], flat)
	}
	return groups, nil
}

// GroupsExcept partitions like Groups but never groups by the axes in skip; the
// remaining kept axes index the groups.
func (t *Tensor) GroupsExcept(reduce, skip string) ([][]int, error) {
	return t.Groups(reduce + strings.Map(func(r rune) rune {
		if strings.ContainsRune(t.Axes, r) && !strings.ContainsRune(reduce, r) {
			return r
		}
		return -1
	}, skip))
}

func (t *Tensor) String() string {
	return fmt.Sprintf("tensor(%s%v)", t.Axes, t.Shape)
}
