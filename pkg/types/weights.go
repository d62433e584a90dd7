package types

type WeightsFormat string

const (
	WeightsFormatPytorchStateDict           WeightsFormat = "pytorch_state_dict"
	WeightsFormatTorchscript                WeightsFormat = "torchscript"
	WeightsFormatKerasHdf5                  WeightsFormat = "keras_hdf5"
	WeightsFormatTensorflowJs               WeightsFormat = "tensorflow_js"
	WeightsFormatTensorflowSavedModelBundle WeightsFormat = "tensorflow_saved_model_bundle"
	WeightsFormatOnnx                       WeightsFormat = "onnx"
)

// WeightsFormats in default priority order.
var WeightsFormats = []WeightsFormat{
	WeightsFormatPytorchStateDict,
	WeightsFormatTorchscript,
	WeightsFormatOnnx,
	WeightsFormatKerasHdf5,
	WeightsFormatTensorflowSavedModelBundle,
	WeightsFormatTensorflowJs,
}

// WeightsEntry holds the fields shared by every weights format.
type WeightsEntry struct {
	Source      string       `json:"source"`
	SHA256      string       `json:"sha256"`
	Authors     []Author     `json:"authors,omitempty"`
	Attachments *Attachments `json:"attachments,omitempty"`
	Parent      string       `json:"parent,omitempty"`
}

type OnnxWeights struct {
	WeightsEntry
	OpsetVersion int `json:"opset_version,omitempty"`
}

type PytorchStateDictWeights struct {
	WeightsEntry
	Architecture       string         `json:"architecture"`
	ArchitectureSHA256 string         `json:"architecture_sha256,omitempty"`
	Kwargs             map[string]any `json:"kwargs,omitempty"`
	PytorchVersion     string         `json:"pytorch_version,omitempty"`
}

type TorchscriptWeights struct {
	WeightsEntry
	PytorchVersion string `json:"pytorch_version,omitempty"`
}

type TensorflowWeights struct {
	WeightsEntry
	TensorflowVersion string `json:"tensorflow_version,omitempty"`
}

// Weights is the closed set of supported weights formats; at least one is present.
type Weights struct {
	PytorchStateDict           *PytorchStateDictWeights `json:"pytorch_state_dict,omitempty"`
	Torchscript                *TorchscriptWeights      `json:"torchscript,omitempty"`
	KerasHdf5                  *TensorflowWeights       `json:"keras_hdf5,omitempty"`
	TensorflowJs               *TensorflowWeights       `json:"tensorflow_js,omitempty"`
	TensorflowSavedModelBundle *TensorflowWeights       `json:"tensorflow_saved_model_bundle,omitempty"`
	Onnx                       *OnnxWeights             `json:"onnx,omitempty"`
}

// Entry returns the common entry of the given format.
func (w Weights) Entry(format WeightsFormat) (*WeightsEntry, bool) {
	switch format {
	case WeightsFormatPytorchStateDict:
		if w.PytorchStateDict != nil {
			return &w.PytorchStateDict.WeightsEntry, true
		}
	case WeightsFormatTorchscript:
		if w.Torchscript != nil {
			return &w.Torchscript.WeightsEntry, true
		}
	case WeightsFormatKerasHdf5:
		if w.KerasHdf5 != nil {
			return &w.KerasHdf5.WeightsEntry, true
		}
	case WeightsFormatTensorflowJs:
		if w.TensorflowJs != nil {
			return &w.TensorflowJs.WeightsEntry, true
		}
	case WeightsFormatTensorflowSavedModelBundle:
		if w.TensorflowSavedModelBundle != nil {
			return &w.TensorflowSavedModelBundle.WeightsEntry, true
		}
	case WeightsFormatOnnx:
		if w.Onnx != nil {
			return &w.Onnx.WeightsEntry, true
		}
	}
	return nil, false
}

// Formats lists the present formats in priority order.
func (w Weights) Formats() []WeightsFormat {
	formats := []WeightsFormat{}
	for _, f := range WeightsFormats {
		if _, ok := w.Entry(f); ok {
			formats = append(formats, f)
		}
	}
	return formats
}

// Only returns a copy of w holding just the given format.
func (w Weights) Only(format WeightsFormat) Weights {
	var out Weights
	switch format {
	case WeightsFormatPytorchStateDict:
		out.PytorchStateDict = w.PytorchStateDict
	case WeightsFormatTorchscript:
		out.Torchscript = w.Torchscript
	case WeightsFormatKerasHdf5:
		out.KerasHdf5 = w.KerasHdf5
	case WeightsFormatTensorflowJs:
		out.TensorflowJs = w.TensorflowJs
	case WeightsFormatTensorflowSavedModelBundle:
		out.TensorflowSavedModelBundle = w.TensorflowSavedModelBundle
	case WeightsFormatOnnx:
		out.Onnx = w.Onnx
	}
	return out
}
