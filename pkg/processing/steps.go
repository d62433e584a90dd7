package processing

import (
	"fmt"
	"math"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/tensor"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

type Kind string

const (
	Preprocessing  Kind = "preprocessing"
	Postprocessing Kind = "postprocessing"
)

type Mode string

const (
	ModeFixed      Mode = "fixed"
	ModePerSample  Mode = "per_sample"
	ModePerDataset Mode = "per_dataset"
)

const (
	NameBinarize             = "binarize"
	NameClip                 = "clip"
	NameScaleLinear          = "scale_linear"
	NameSigmoid              = "sigmoid"
	NameZeroMeanUnitVariance = "zero_mean_unit_variance"
	NameScaleRange           = "scale_range"
	NameScaleMeanVariance    = "scale_mean_variance"
)

const DefaultEps = 1e-6

// Step is one executable processing operation. Apply never modifies its input.
type Step interface {
	Name() string
	Apply(t *tensor.Tensor, refs map[string]*tensor.Tensor) (*tensor.Tensor, error)
}

// axesStep is implemented by steps that operate along named axes.
type axesStep interface {
	TargetAxes() string
}

// referenceStep is implemented by steps that read another tensor.
type referenceStep interface {
	Reference() string
}

type parseFunc func(k *kwargs) (Step, error)

var vocabulary = map[Kind]map[string]parseFunc{
	Preprocessing: {
		NameBinarize:             parseBinarize,
		NameClip:                 parseClip,
		NameScaleLinear:          parseScaleLinear,
		NameSigmoid:              parseSigmoid,
		NameZeroMeanUnitVariance: parseZeroMeanUnitVariance,
		NameScaleRange:           parseScaleRange,
	},
	Postprocessing: {
		NameBinarize:             parseBinarize,
		NameClip:                 parseClip,
		NameScaleLinear:          parseScaleLinear,
		NameSigmoid:              parseSigmoid,
		NameZeroMeanUnitVariance: parseZeroMeanUnitVariance,
		NameScaleRange:           parseScaleRange,
		NameScaleMeanVariance:    parseScaleMeanVariance,
	},
}

// Parse turns a declared step into an executable one.
func Parse(kind Kind, step types.ProcessingStep) (Step, error) {
	steps, ok := vocabulary[kind]
	if !ok {
		return nil, fmt.Errorf("unknown processing kind %q", kind)
	}
	parse, ok := steps[step.Name]
	if !ok {
		return nil, errors.NewUnknownStepError(step.Name)
	}
	return parse(newKwargs(step.Name, step.Kwargs))
}

type Binarize struct {
	Threshold float64
}

func parseBinarize(k *kwargs) (Step, error) {
	s := Binarize{Threshold: k.number("threshold", true, 0)}
	return s, k.done()
}

func (Binarize) Name() string { return NameBinarize }

func (s Binarize) Apply(t *tensor.Tensor, _ map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	return t.Map(func(v float64) float64 {
		if v > s.Threshold {
			return 1
		}
		return 0
	}), nil
}

type Clip struct {
	Min float64
	Max float64
}

func parseClip(k *kwargs) (Step, error) {
	s := Clip{Min: k.number("min", true, 0), Max: k.number("max", true, 0)}
	if k.err == nil && s.Min > s.Max {
		k.fail("min %v is greater than max %v", s.Min, s.Max)
	}
	return s, k.done()
}

func (Clip) Name() string { return NameClip }

func (s Clip) Apply(t *tensor.Tensor, _ map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	return t.Map(func(v float64) float64 {
		return math.Min(math.Max(v, s.Min), s.Max)
	}), nil
}

// ScaleLinear computes input*gain+offset. A single gain or offset applies to every
// element. Lists are indexed by the coordinate over the tensor axes that are neither
// in Axes nor the batch axis.
type ScaleLinear struct {
	Axes   string
	Gain   []float64
	Offset []float64
}

func parseScaleLinear(k *kwargs) (Step, error) {
	s := ScaleLinear{Axes: k.axes()}
	gain, hasGain := k.numbers("gain")
	offset, hasOffset := k.numbers("offset")
	if k.err != nil {
		return s, k.done()
	}
	if !hasGain && !hasOffset {
		k.fail("at least one of gain or offset is required")
		return s, k.done()
	}
	if !hasGain {
		gain = []float64{1}
	}
	if !hasOffset {
		offset = []float64{0}
	}
	if len(gain) > 1 && len(offset) > 1 && len(gain) != len(offset) {
		k.fail("gain and offset have different lengths %d and %d", len(gain), len(offset))
	}
	if allEqual(gain, 1) && allEqual(offset, 0) {
		k.fail("redundant linear scaling with gain 1 and offset 0")
	}
	s.Gain, s.Offset = gain, offset
	return s, k.done()
}

func allEqual(vs []float64, want float64) bool {
	for _, v := range vs {
		if v != want {
			return false
		}
	}
	return true
}

func (ScaleLinear) Name() string         { return NameScaleLinear }
func (s ScaleLinear) TargetAxes() string { return s.Axes }

// Groups returns how many gain or offset values the step carries.
func (s ScaleLinear) Groups() int {
	if len(s.Gain) > len(s.Offset) {
		return len(s.Gain)
	}
	return len(s.Offset)
}

func (s ScaleLinear) Apply(t *tensor.Tensor, _ map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	if s.Groups() == 1 {
		gain, offset := s.Gain[0], s.Offset[0]
		return t.Map(func(v float64) float64 { return v*gain + offset }), nil
	}
	groups, err := t.GroupsExcept(s.Axes, "b")
	if err != nil {
		return nil, errors.NewInvalidArgumentError(s.Name(), err.Error())
	}
	if len(groups) != s.Groups() {
		return nil, errors.NewInvalidArgumentError(s.Name(),
			fmt.Sprintf("%d gain/offset values for %d groups of %s", s.Groups(), len(groups), t))
	}
	out := t.Clone()
	for g, idx := range groups {
		gain, offset := pick(s.Gain, g), pick(s.Offset, g)
		for _, i := range idx {
			out.Data[i] = t.Data[i]*gain + offset
		}
	}
	return out, nil
}

func pick(vs []float64, i int) float64 {
	if len(vs) == 1 {
		return vs[0]
	}
	return vs[i]
}

type Sigmoid struct{}

func parseSigmoid(k *kwargs) (Step, error) {
	return Sigmoid{}, k.done()
}

func (Sigmoid) Name() string { return NameSigmoid }

func (Sigmoid) Apply(t *tensor.Tensor, _ map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	return t.Map(func(v float64) float64 { return 1 / (1 + math.Exp(-v)) }), nil
}

type ZeroMeanUnitVariance struct {
	Mode Mode
	Axes string
	Mean []float64
	Std  []float64
	Eps  float64
}

func parseZeroMeanUnitVariance(k *kwargs) (Step, error) {
	s := ZeroMeanUnitVariance{
		Mode: k.mode(ModeFixed, ModePerSample, ModePerDataset),
		Axes: k.axes(),
		Eps:  k.number("eps", false, DefaultEps),
	}
	mean, hasMean := k.numbers("mean")
	std, hasStd := k.numbers("std")
	if k.err == nil {
		switch {
		case s.Mode == ModeFixed && (!hasMean || !hasStd):
			k.fail("mode fixed requires mean and std")
		case s.Mode != ModeFixed && (hasMean || hasStd):
			k.fail("mean and std are only valid with mode fixed")
		case len(mean) > 1 && len(std) > 1 && len(mean) != len(std):
			k.fail("mean and std have different lengths %d and %d", len(mean), len(std))
		case s.Eps <= 0:
			k.fail("eps must be positive")
		}
	}
	s.Mean, s.Std = mean, std
	return s, k.done()
}

func (ZeroMeanUnitVariance) Name() string         { return NameZeroMeanUnitVariance }
func (s ZeroMeanUnitVariance) TargetAxes() string { return s.Axes }

func (s ZeroMeanUnitVariance) Apply(t *tensor.Tensor, _ map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	switch s.Mode {
	case ModeFixed:
		groups, err := t.GroupsExcept(s.Axes, "b")
		if err != nil {
			return nil, errors.NewInvalidArgumentError(s.Name(), err.Error())
		}
		if n := max(len(s.Mean), len(s.Std)); n > 1 && n != len(groups) {
			return nil, errors.NewInvalidArgumentError(s.Name(),
				fmt.Sprintf("%d mean/std values for %d groups of %s", n, len(groups), t))
		}
		out := t.Clone()
		for g, idx := range groups {
			mean, std := pick(s.Mean, g), pick(s.Std, g)
			for _, i := range idx {
				out.Data[i] = (t.Data[i] - mean) / (std + s.Eps)
			}
		}
		return out, nil
	case ModePerSample:
		groups, err := t.Groups(sampleAxes(t, s.Axes))
		if err != nil {
			return nil, errors.NewInvalidArgumentError(s.Name(), err.Error())
		}
		out := t.Clone()
		for _, idx := range groups {
			mean, std := meanStd(t.Data, idx)
			for _, i := range idx {
				out.Data[i] = (t.Data[i] - mean) / (std + s.Eps)
			}
		}
		return out, nil
	default:
		return nil, errors.NewUnsupportedError(fmt.Sprintf("%s: mode %s requires dataset statistics", s.Name(), s.Mode))
	}
}

type ScaleRange struct {
	Mode            Mode
	Axes            string
	MinPercentile   float64
	MaxPercentile   float64
	Eps             float64
	ReferenceTensor string
}

func parseScaleRange(k *kwargs) (Step, error) {
	s := ScaleRange{
		Mode:            k.mode(ModePerSample, ModePerDataset),
		Axes:            k.axes(),
		MinPercentile:   k.number("min_percentile", false, 0),
		MaxPercentile:   k.number("max_percentile", false, 100),
		Eps:             k.number("eps", false, DefaultEps),
		ReferenceTensor: k.str("reference_tensor", false),
	}
	if k.err == nil {
		switch {
		case s.MinPercentile < 0 || s.MinPercentile >= 100:
			k.fail("min_percentile %v must be in [0, 100)", s.MinPercentile)
		case s.MaxPercentile <= 1 || s.MaxPercentile > 100:
			k.fail("max_percentile %v must be in (1, 100]", s.MaxPercentile)
		case s.MinPercentile >= s.MaxPercentile:
			k.fail("min_percentile %v must be less than max_percentile %v", s.MinPercentile, s.MaxPercentile)
		case s.Eps <= 0:
			k.fail("eps must be positive")
		}
	}
	return s, k.done()
}

func (ScaleRange) Name() string         { return NameScaleRange }
func (s ScaleRange) TargetAxes() string { return s.Axes }
func (s ScaleRange) Reference() string  { return s.ReferenceTensor }

func (s ScaleRange) Apply(t *tensor.Tensor, refs map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	if s.Mode != ModePerSample {
		return nil, errors.NewUnsupportedError(fmt.Sprintf("%s: mode %s requires dataset statistics", s.Name(), s.Mode))
	}
	src := t
	if s.ReferenceTensor != "" {
		ref, ok := refs[s.ReferenceTensor]
		if !ok {
			return nil, errors.NewInvalidArgumentError(s.Name(), fmt.Sprintf("reference tensor %q not provided", s.ReferenceTensor))
		}
		src = ref
	}
	groups, srcGroups, err := pairGroups(t, src, s.Axes)
	if err != nil {
		return nil, errors.NewInvalidArgumentError(s.Name(), err.Error())
	}
	out := t.Clone()
	for g, idx := range groups {
		values := gather(src.Data, srcGroups[g])
		lo, hi := Percentile(values, s.MinPercentile), Percentile(values, s.MaxPercentile)
		for _, i := range idx {
			out.Data[i] = (t.Data[i] - lo) / (hi - lo + s.Eps)
		}
	}
	return out, nil
}

// ScaleMeanVariance rescales a tensor to the mean and standard deviation of a reference tensor.
type ScaleMeanVariance struct {
	Mode            Mode
	ReferenceTensor string
	Axes            string
	Eps             float64
}

func parseScaleMeanVariance(k *kwargs) (Step, error) {
	s := ScaleMeanVariance{
		Mode:            k.mode(ModePerSample, ModePerDataset),
		ReferenceTensor: k.str("reference_tensor", true),
		Axes:            k.axes(),
		Eps:             k.number("eps", false, DefaultEps),
	}
	if k.err == nil && s.Eps <= 0 {
		k.fail("eps must be positive")
	}
	return s, k.done()
}

func (ScaleMeanVariance) Name() string         { return NameScaleMeanVariance }
func (s ScaleMeanVariance) TargetAxes() string { return s.Axes }
func (s ScaleMeanVariance) Reference() string  { return s.ReferenceTensor }

func (s ScaleMeanVariance) Apply(t *tensor.Tensor, refs map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	if s.Mode != ModePerSample {
		return nil, errors.NewUnsupportedError(fmt.Sprintf("%s: mode %s requires dataset statistics", s.Name(), s.Mode))
	}
	ref, ok := refs[s.ReferenceTensor]
	if !ok {
		return nil, errors.NewInvalidArgumentError(s.Name(), fmt.Sprintf("reference tensor %q not provided", s.ReferenceTensor))
	}
	groups, refGroups, err := pairGroups(t, ref, s.Axes)
	if err != nil {
		return nil, errors.NewInvalidArgumentError(s.Name(), err.Error())
	}
	out := t.Clone()
	for g, idx := range groups {
		mean, std := meanStd(t.Data, idx)
		refMean, refStd := meanStd(ref.Data, refGroups[g])
		for _, i := range idx {
			out.Data[i] = (t.Data[i]-mean)/(std+s.Eps)*(refStd+s.Eps) + refMean
		}
	}
	return out, nil
}
