package types

import (
	"encoding/json"
	"math"
	"strings"
)

// AxisCodes are the valid axis identifiers, in no particular order.
const AxisCodes = "bitczyx"

var DataTypes = []string{
	"float32", "float64",
	"uint8", "int8", "uint16", "int16", "uint32", "int32", "uint64", "int64",
	"bool",
}

type TensorSpec struct {
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Axes           string           `json:"axes"`
	DataType       string           `json:"data_type"`
	DataRange      *DataRange       `json:"data_range,omitempty"`
	Shape          Shape            `json:"shape"`
	Preprocessing  []ProcessingStep `json:"preprocessing,omitempty"`
	Postprocessing []ProcessingStep `json:"postprocessing,omitempty"`
	Halo           []int            `json:"halo,omitempty"`
}

// AxisIndex returns the position of axis a, or -1.
func (t TensorSpec) AxisIndex(a byte) int {
	return strings.IndexByte(t.Axes, a)
}

type ShapeKind string

const (
	ShapeExplicit     ShapeKind = "explicit"
	ShapeParametrized ShapeKind = "parametrized"
	ShapeImplicit     ShapeKind = "implicit"
)

// Wildcard marks an explicit shape entry of unconstrained size.
const Wildcard = -1

// Shape is one of: an explicit list (Fixed), a parametrized input shape (Min, Step)
// with valid sizes min+k*step, or an implicit output shape computed from a reference
// input as ref*scale+2*offset.
type Shape struct {
	Fixed []int

	Min  []int
	Step []int

	ReferenceTensor string
	Scale           []float64
	Offset          []float64
}

func (s Shape) Kind() ShapeKind {
	switch {
	case s.ReferenceTensor != "":
		return ShapeImplicit
	case s.Min != nil:
		return ShapeParametrized
	default:
		return ShapeExplicit
	}
}

func (s Shape) Len() int {
	switch s.Kind() {
	case ShapeImplicit:
		return len(s.Scale)
	case ShapeParametrized:
		return len(s.Min)
	default:
		return len(s.Fixed)
	}
}

func (s Shape) MarshalJSON() ([]byte, error) {
	switch s.Kind() {
	case ShapeImplicit:
		return json.Marshal(struct {
			ReferenceTensor string    `json:"reference_tensor"`
			Scale           []float64 `json:"scale"`
			Offset          []float64 `json:"offset"`
		}{s.ReferenceTensor, s.Scale, s.Offset})
	case ShapeParametrized:
		return json.Marshal(struct {
			Min  []int `json:"min"`
			Step []int `json:"step"`
		}{s.Min, s.Step})
	default:
		fixed := make([]*int, len(s.Fixed))
		for i := range s.Fixed {
			if s.Fixed[i] != Wildcard {
				v := s.Fixed[i]
				fixed[i] = &v
			}
		}
		return json.Marshal(fixed)
	}
}

// DataRange is an inclusive value range; infinite bounds mean unbounded.
type DataRange struct {
	Min float64
	Max float64
}

func (r DataRange) MarshalJSON() ([]byte, error) {
	bound := func(v float64) *float64 {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil
		}
		return &v
	}
	return json.Marshal([]*float64{bound(r.Min), bound(r.Max)})
}

// ProcessingStep is a named pre- or postprocessing operation with its keyword arguments
// as they appear in the manifest.
type ProcessingStep struct {
	Name   string         `json:"name"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}
