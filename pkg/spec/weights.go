package spec

import (
	"regexp"
	"sort"

	"github.com/mese79/spec-bioimage-io/pkg/types"
)

const minOpsetVersion = 7

var sha256Hex = regexp.MustCompile(`^[0-9a-f]{64}$`)

func (v *validator) weights(path string, raw any) types.Weights {
	w := types.Weights{}
	o, ok := v.object(path, raw)
	if !ok {
		return w
	}
	if len(o.m) == 0 {
		v.errorf(path, "at least one weights format is required")
		return w
	}
	formats := make([]string, 0, len(o.m))
	for k := range o.m {
		formats = append(formats, k)
	}
	sort.Strings(formats)
	for _, format := range formats {
		// unknown formats fail in both modes
		o.known[format] = true
		e, ok := v.object(o.at(format), o.m[format])
		if !ok {
			continue
		}
		switch types.WeightsFormat(format) {
		case types.WeightsFormatOnnx:
			entry := &types.OnnxWeights{WeightsEntry: v.weightsEntry(e)}
			if n, ok := e.int("opset_version", false); ok {
				if n < minOpsetVersion {
					v.errorf(e.at("opset_version"), "opset version %d is below %d", n, minOpsetVersion)
				}
				entry.OpsetVersion = n
			} else {
				v.warnf(e.at("opset_version"), "missing")
			}
			w.Onnx = entry
		case types.WeightsFormatPytorchStateDict:
			entry := &types.PytorchStateDictWeights{
				WeightsEntry:       v.weightsEntry(e),
				Architecture:       e.str("architecture", true),
				ArchitectureSHA256: e.str("architecture_sha256", false),
				Kwargs:             e.mapping("kwargs"),
				PytorchVersion:     e.version("pytorch_version", false),
			}
			if entry.ArchitectureSHA256 != "" && !sha256Hex.MatchString(entry.ArchitectureSHA256) {
				v.errorf(e.at("architecture_sha256"), "expected 64 lowercase hex characters")
			}
			w.PytorchStateDict = entry
		case types.WeightsFormatTorchscript:
			w.Torchscript = &types.TorchscriptWeights{
				WeightsEntry:   v.weightsEntry(e),
				PytorchVersion: e.version("pytorch_version", false),
			}
		case types.WeightsFormatKerasHdf5:
			w.KerasHdf5 = v.tensorflowWeights(e)
		case types.WeightsFormatTensorflowJs:
			w.TensorflowJs = v.tensorflowWeights(e)
		case types.WeightsFormatTensorflowSavedModelBundle:
			w.TensorflowSavedModelBundle = v.tensorflowWeights(e)
		default:
			v.errorf(o.at(format), "unknown weights format, expected one of %v", types.WeightsFormats)
			continue
		}
		e.finish()
	}
	return w
}

func (v *validator) tensorflowWeights(e *object) *types.TensorflowWeights {
	return &types.TensorflowWeights{
		WeightsEntry:      v.weightsEntry(e),
		TensorflowVersion: e.version("tensorflow_version", false),
	}
}

func (v *validator) weightsEntry(e *object) types.WeightsEntry {
	entry := types.WeightsEntry{
		Source:      e.str("source", true),
		SHA256:      e.str("sha256", true),
		Authors:     v.authors(e, "authors"),
		Attachments: v.attachments(e, "attachments"),
		Parent:      e.str("parent", false),
	}
	if entry.SHA256 != "" && !sha256Hex.MatchString(entry.SHA256) {
		v.errorf(e.at("sha256"), "expected 64 lowercase hex characters")
	}
	// dependencies of the original framework environment are not interpreted
	e.allow("dependencies")
	return entry
}
