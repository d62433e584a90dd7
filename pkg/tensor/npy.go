package tensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sbinet/npyio"
)

// ReadNPY decodes a numpy .npy array into a float64 tensor with the given axes.
// An empty axes string leaves the axes unnamed.
func ReadNPY(r io.Reader, axes string) (*Tensor, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}
	shape := append([]int(nil), npy.Header.Descr.Shape...)
	if npy.Header.Descr.Fortran {
		return nil, fmt.Errorf("fortran ordered arrays are not supported")
	}
	if axes != "" && len(axes) != len(shape) {
		return nil, fmt.Errorf("array of shape %v does not match axes %q", shape, axes)
	}
	data, err := readNPYData(npy)
	if err != nil {
		return nil, err
	}
	return &Tensor{Axes: axes, Shape: shape, Data: data}, nil
}

// ReadNPYShape reads only the header of a .npy array.
func ReadNPYShape(r io.Reader) ([]int, string, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("read npy header: %w", err)
	}
	return append([]int(nil), npy.Header.Descr.Shape...), npy.Header.Descr.Type, nil
}

func readNPYData(npy *npyio.Reader) ([]float64, error) {
	descr := strings.TrimLeft(npy.Header.Descr.Type, "<>|=")
	switch descr {
	case "f8":
		var v []float64
		err := npy.Read(&v)
		return v, err
	case "f4":
		var v []float32
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "u1":
		var v []uint8
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "i1":
		var v []int8
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "u2":
		var v []uint16
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "i2":
		var v []int16
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "u4":
		var v []uint32
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "i4":
		var v []int32
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "u8":
		var v []uint64
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "i8":
		var v []int64
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "b1":
		var v []bool
		if err := npy.Read(&v); err != nil {
			return nil, err
		}
		out := make([]float64, len(v))
		for i, b := range v {
			if b {
				out[i] = 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", npy.Header.Descr.Type)
	}
}

type number interface {
	~float32 | ~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64
}

func convert[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = float64(v[i])
	}
	return out
}

var npyMagic = []byte("\x93NUMPY")

// WriteNPY encodes t as a little-endian float32 or float64 .npy (format 1.0) array.
func WriteNPY(w io.Writer, t *Tensor, dtype string) error {
	var descr string
	switch dtype {
	case "", "float32":
		descr = "<f4"
	case "float64":
		descr = "<f8"
	default:
		return fmt.Errorf("unsupported dtype for writing: %s", dtype)
	}
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = fmt.Sprint(d)
	}
	shape := strings.Join(dims, ", ")
	if len(t.Shape) == 1 {
		shape += ","
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, shape)
	// magic, version, header length and header end on a 64 byte boundary
	total := len(npyMagic) + 2 + 2 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	buf := &bytes.Buffer{}
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}

	switch descr {
	case "<f4":
		out := make([]byte, 4*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
		}
		_, err := w.Write(out)
		return err
	default:
		out := make([]byte, 8*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
		}
		_, err := w.Write(out)
		return err
	}
}
