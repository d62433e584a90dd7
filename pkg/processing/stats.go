package processing

import (
	"fmt"
	"math"
	"strings"

	"github.com/mese79/spec-bioimage-io/pkg/tensor"
	"golang.org/x/exp/slices"
)

// sampleAxes defaults to every non-batch axis of t.
func sampleAxes(t *tensor.Tensor, axes string) string {
	if axes != "" {
		return axes
	}
	return strings.ReplaceAll(t.Axes, "b", "")
}

// pairGroups groups t and src over the same reduction axes and requires both to
// produce the same number of groups.
func pairGroups(t, src *tensor.Tensor, axes string) ([][]int, [][]int, error) {
	reduce := sampleAxes(t, axes)
	groups, err := t.Groups(reduce)
	if err != nil {
		return nil, nil, err
	}
	if src == t {
		return groups, groups, nil
	}
	srcGroups, err := src.Groups(reduce)
	if err != nil {
		return nil, nil, fmt.Errorf("reference %s: %w", src, err)
	}
	if len(srcGroups) != len(groups) {
		return nil, nil, fmt.Errorf("reference %s does not match %s over axes %q", src, t, reduce)
	}
	return groups, srcGroups, nil
}

func gather(data []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}

// meanStd returns the mean and population standard deviation of data at idx.
func meanStd(data []float64, idx []int) (float64, float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	var sum float64
	for _, i := range idx {
		sum += data[i]
	}
	mean := sum / float64(len(idx))
	var sq float64
	for _, i := range idx {
		d := data[i] - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(idx)))
}

// Percentile returns the p-th percentile (0-100) of values, linearly interpolating
// between the closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	slices.Sort(sorted)
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
