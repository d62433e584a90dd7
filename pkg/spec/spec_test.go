package spec

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

func readRaw(t *testing.T) map[string]any {
	t.Helper()
	content, err := os.ReadFile(filepath.Join("testdata", ManifestFileName))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := Unmarshal(content)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func input(raw map[string]any, i int) map[string]any {
	return raw["inputs"].([]any)[i].(map[string]any)
}

func output(raw map[string]any, i int) map[string]any {
	return raw["outputs"].([]any)[i].(map[string]any)
}

func weights(raw map[string]any, format string) map[string]any {
	return raw["weights"].(map[string]any)[format].(map[string]any)
}

func TestLoad(t *testing.T) {
	desc, err := Load(context.Background(), "testdata")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	root, _ := filepath.Abs("testdata")
	if desc.Root != root {
		t.Errorf("Load() root = %q, want %q", desc.Root, root)
	}
	if desc.Name != "UNet 2D Nuclei Broad" || desc.FormatVersion != "0.4.9" || desc.Version != "0.1.0" {
		t.Errorf("Load() header = %q %q %q", desc.Name, desc.FormatVersion, desc.Version)
	}
	wantTags := []string{"unet2d", "pytorch", "nucleus", "segmentation", "dsb2018"}
	if !reflect.DeepEqual(desc.Tags, wantTags) {
		t.Errorf("Load() tags = %v, want %v", desc.Tags, wantTags)
	}
	wantTime := time.Date(2019, 12, 11, 12, 22, 32, 0, time.UTC)
	if desc.Timestamp == nil || !desc.Timestamp.Equal(wantTime) {
		t.Errorf("Load() timestamp = %v, want %v", desc.Timestamp, wantTime)
	}
	raw := desc.Inputs[0]
	if !reflect.DeepEqual(raw.Shape.Fixed, []int{1, 3, 224, 224}) || raw.Axes != "bcyx" {
		t.Errorf("Load() input = %s %v", raw.Axes, raw.Shape.Fixed)
	}
	if raw.DataRange == nil || !math.IsInf(raw.DataRange.Min, -1) || !math.IsInf(raw.DataRange.Max, 1) {
		t.Errorf("Load() data range = %v, want unbounded", raw.DataRange)
	}
	wantSteps := []types.ProcessingStep{{Name: "scale_linear", Kwargs: map[string]any{"gain": 0.003921568627, "offset": 0.0}}}
	if !reflect.DeepEqual(raw.Preprocessing, wantSteps) {
		t.Errorf("Load() preprocessing = %v, want %v", raw.Preprocessing, wantSteps)
	}
	if desc.Weights.Onnx == nil || desc.Weights.Onnx.OpsetVersion != 12 {
		t.Errorf("Load() onnx weights = %+v", desc.Weights.Onnx)
	}
	if desc.Weights.Torchscript == nil || desc.Weights.Torchscript.PytorchVersion != "1.10" {
		t.Errorf("Load() torchscript weights = %+v", desc.Weights.Torchscript)
	}
	wantFormats := []types.WeightsFormat{types.WeightsFormatTorchscript, types.WeightsFormatOnnx}
	if !reflect.DeepEqual(desc.Weights.Formats(), wantFormats) {
		t.Errorf("Formats() = %v, want %v", desc.Weights.Formats(), wantFormats)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "rdf.yaml"))
	if !errors.IsErrCode(err, errors.ErrCodeMissingFile) {
		t.Errorf("Load() error = %v, want %s", err, errors.ErrCodeMissingFile)
	}
}

func TestRoundTrip(t *testing.T) {
	first, err := Validate(readRaw(t))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	content, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	second, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse() error = %v\n%s", err, content)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("round trip changed the descriptor\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestValidateDoesNotModifyInput(t *testing.T) {
	raw := readRaw(t)
	before := readRaw(t)
	if _, err := Validate(raw); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(raw, before) {
		t.Errorf("Validate() modified its input")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(raw map[string]any)
		wantCode errors.ErrCode
	}{
		{name: "missing name", mutate: func(raw map[string]any) { delete(raw, "name") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "missing version", mutate: func(raw map[string]any) { delete(raw, "version") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "missing format_version", mutate: func(raw map[string]any) { delete(raw, "format_version") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "missing type", mutate: func(raw map[string]any) { delete(raw, "type") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "missing license", mutate: func(raw map[string]any) { delete(raw, "license") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "missing inputs", mutate: func(raw map[string]any) { delete(raw, "inputs") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "missing outputs", mutate: func(raw map[string]any) { delete(raw, "outputs") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "missing weights", mutate: func(raw map[string]any) { delete(raw, "weights") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "empty weights", mutate: func(raw map[string]any) { raw["weights"] = map[string]any{} }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "name not a string", mutate: func(raw map[string]any) { raw["name"] = []any{"a"} }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "unsupported format_version", mutate: func(raw map[string]any) { raw["format_version"] = "0.3.2" }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "wrong type", mutate: func(raw map[string]any) { raw["type"] = "application" }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "invalid timestamp", mutate: func(raw map[string]any) { raw["timestamp"] = "yesterday" }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "cite without doi or url", mutate: func(raw map[string]any) { raw["cite"] = []any{map[string]any{"text": "paper"}} }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "author without name", mutate: func(raw map[string]any) { raw["authors"] = []any{map[string]any{"affiliation": "EMBL"}} }, wantCode: errors.ErrCodeSchemaInvalid},
		{
			name:     "shape shorter than axes",
			mutate:   func(raw map[string]any) { input(raw, 0)["shape"] = []any{1.0, 3.0, 224.0} },
			wantCode: errors.ErrCodeShapeMismatch,
		},
		{
			name: "shape mismatch wins over schema errors",
			mutate: func(raw map[string]any) {
				delete(raw, "license")
				output(raw, 1)["shape"] = []any{1.0, 1024.0, 1.0}
			},
			wantCode: errors.ErrCodeShapeMismatch,
		},
		{
			name: "parametrized step length",
			mutate: func(raw map[string]any) {
				input(raw, 0)["shape"] = map[string]any{"min": []any{1.0, 3.0, 64.0, 64.0}, "step": []any{0.0, 0.0, 16.0}}
			},
			wantCode: errors.ErrCodeShapeMismatch,
		},
		{name: "halo length", mutate: func(raw map[string]any) { output(raw, 1)["halo"] = []any{0.0} }, wantCode: errors.ErrCodeShapeMismatch},
		{name: "invalid axis", mutate: func(raw map[string]any) { input(raw, 0)["axes"] = "bcyq" }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "duplicate axis", mutate: func(raw map[string]any) { input(raw, 0)["axes"] = "bcyy" }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "batch size", mutate: func(raw map[string]any) { input(raw, 0)["shape"] = []any{2.0, 3.0, 224.0, 224.0} }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "fractional dimension", mutate: func(raw map[string]any) { input(raw, 0)["shape"] = []any{1.0, 3.5, 224.0, 224.0} }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "unknown data type", mutate: func(raw map[string]any) { input(raw, 0)["data_type"] = "complex64" }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "inverted data range", mutate: func(raw map[string]any) { output(raw, 0)["data_range"] = []any{1.0, 0.0} }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "duplicate tensor name", mutate: func(raw map[string]any) { output(raw, 1)["name"] = "raw" }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "tensor name not an identifier", mutate: func(raw map[string]any) { input(raw, 0)["name"] = "invalid/name" }, wantCode: errors.ErrCodeSchemaInvalid},
		{
			name: "unknown weights format",
			mutate: func(raw map[string]any) {
				raw["weights"].(map[string]any)["caffe"] = map[string]any{"source": "w.caffemodel", "sha256": strings.Repeat("a", 64)}
			},
			wantCode: errors.ErrCodeSchemaInvalid,
		},
		{name: "short sha256", mutate: func(raw map[string]any) { weights(raw, "onnx")["sha256"] = "s" }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "uppercase sha256", mutate: func(raw map[string]any) { weights(raw, "onnx")["sha256"] = strings.Repeat("A", 64) }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "missing sha256", mutate: func(raw map[string]any) { delete(weights(raw, "onnx"), "sha256") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "missing source", mutate: func(raw map[string]any) { delete(weights(raw, "onnx"), "source") }, wantCode: errors.ErrCodeSchemaInvalid},
		{name: "old opset", mutate: func(raw map[string]any) { weights(raw, "onnx")["opset_version"] = 5.0 }, wantCode: errors.ErrCodeSchemaInvalid},
		{
			name: "state dict without architecture",
			mutate: func(raw map[string]any) {
				raw["weights"].(map[string]any)["pytorch_state_dict"] = map[string]any{"source": "w.pt", "sha256": strings.Repeat("b", 64)}
			},
			wantCode: errors.ErrCodeSchemaInvalid,
		},
		{name: "test inputs count", mutate: func(raw map[string]any) { raw["test_inputs"] = []any{"a.npy", "b.npy"} }, wantCode: errors.ErrCodeSchemaInvalid},
		{
			name: "implicit shape with unknown reference",
			mutate: func(raw map[string]any) {
				output(raw, 0)["shape"] = map[string]any{"reference_tensor": "missing", "scale": []any{1.0, 1.0}, "offset": []any{0.0, 0.0}}
			},
			wantCode: errors.ErrCodeSchemaInvalid,
		},
		{
			name: "unknown step",
			mutate: func(raw map[string]any) {
				input(raw, 0)["preprocessing"] = []any{map[string]any{"name": "gamma_correction"}}
			},
			wantCode: errors.ErrCodeUnknownStep,
		},
		{
			name: "postprocessing-only step as preprocessing",
			mutate: func(raw map[string]any) {
				input(raw, 0)["preprocessing"] = []any{map[string]any{"name": "scale_mean_variance", "kwargs": map[string]any{"mode": "per_sample", "reference_tensor": "raw"}}}
			},
			wantCode: errors.ErrCodeUnknownStep,
		},
		{
			name: "invalid kwargs",
			mutate: func(raw map[string]any) {
				input(raw, 0)["preprocessing"] = []any{map[string]any{"name": "binarize", "kwargs": map[string]any{"mode": "fixed", "threshold": 0.5}}}
			},
			wantCode: errors.ErrCodeInvalidArgument,
		},
		{
			name: "kwargs axes not in tensor",
			mutate: func(raw map[string]any) {
				input(raw, 0)["preprocessing"] = []any{map[string]any{"name": "scale_range", "kwargs": map[string]any{"mode": "per_sample", "axes": "zyx"}}}
			},
			wantCode: errors.ErrCodeInvalidArgument,
		},
		{
			name: "reference tensor of a step is not an input",
			mutate: func(raw map[string]any) {
				output(raw, 0)["postprocessing"] = []any{map[string]any{"name": "scale_mean_variance", "kwargs": map[string]any{"mode": "per_sample", "reference_tensor": "features"}}}
			},
			wantCode: errors.ErrCodeSchemaInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := readRaw(t)
			tt.mutate(raw)
			_, err := Validate(raw)
			if !errors.IsErrCode(err, tt.wantCode) {
				t.Errorf("Validate() error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(raw map[string]any)
		check  func(t *testing.T, desc *types.ResourceDescriptor)
	}{
		{
			name:   "unknown top-level keys are ignored",
			mutate: func(raw map[string]any) { raw["future_field"] = map[string]any{"anything": true} },
		},
		{
			name:   "unknown tensor keys are ignored",
			mutate: func(raw map[string]any) { input(raw, 0)["future_field"] = 1.0 },
		},
		{
			name:   "first supported format version",
			mutate: func(raw map[string]any) { raw["format_version"] = "0.4.0" },
		},
		{
			name:   "untested patch version",
			mutate: func(raw map[string]any) { raw["format_version"] = "0.4.42" },
		},
		{
			name:   "numeric version",
			mutate: func(raw map[string]any) { raw["version"] = 2.0 },
			check: func(t *testing.T, desc *types.ResourceDescriptor) {
				if desc.Version != "2" {
					t.Errorf("version = %q, want %q", desc.Version, "2")
				}
			},
		},
		{
			name: "parametrized input shape",
			mutate: func(raw map[string]any) {
				input(raw, 0)["shape"] = map[string]any{"min": []any{1.0, 3.0, 64.0, 64.0}, "step": []any{0.0, 0.0, 16.0, 16.0}}
			},
			check: func(t *testing.T, desc *types.ResourceDescriptor) {
				if desc.Inputs[0].Shape.Kind() != types.ShapeParametrized {
					t.Errorf("shape kind = %s", desc.Inputs[0].Shape.Kind())
				}
			},
		},
		{
			name: "implicit output shape",
			mutate: func(raw map[string]any) {
				output(raw, 0)["axes"] = "bcyx"
				output(raw, 0)["shape"] = map[string]any{"reference_tensor": "raw", "scale": []any{1.0, 0.0, 0.5, 0.5}, "offset": []any{0.0, 14.0, 0.0, 0.0}}
				output(raw, 0)["halo"] = []any{0.0, 0.0, 8.0, 8.0}
			},
			check: func(t *testing.T, desc *types.ResourceDescriptor) {
				want := types.Shape{ReferenceTensor: "raw", Scale: []float64{1, 0, 0.5, 0.5}, Offset: []float64{0, 14, 0, 0}}
				if !reflect.DeepEqual(desc.Outputs[0].Shape, want) {
					t.Errorf("shape = %+v, want %+v", desc.Outputs[0].Shape, want)
				}
			},
		},
		{
			name:   "wildcard dimension",
			mutate: func(raw map[string]any) { output(raw, 1)["shape"] = []any{1.0, nil} },
			check: func(t *testing.T, desc *types.ResourceDescriptor) {
				if !reflect.DeepEqual(desc.Outputs[1].Shape.Fixed, []int{1, types.Wildcard}) {
					t.Errorf("shape = %v", desc.Outputs[1].Shape.Fixed)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := readRaw(t)
			tt.mutate(raw)
			desc, err := Validate(raw)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.check != nil {
				tt.check(t, desc)
			}
		})
	}
}

func TestValidateStrict(t *testing.T) {
	raw := readRaw(t)
	if _, err := Validate(raw, WithRejectUnknownFields()); err != nil {
		t.Fatalf("Validate() strict on a clean manifest error = %v", err)
	}
	raw["future_field"] = true
	_, err := Validate(raw, WithRejectUnknownFields())
	if !errors.IsErrCode(err, errors.ErrCodeSchemaInvalid) {
		t.Errorf("Validate() strict error = %v, want %s", err, errors.ErrCodeSchemaInvalid)
	}
	if err != nil && !strings.Contains(err.Error(), "future_field") {
		t.Errorf("Validate() strict error %q does not name the field", err)
	}
}

func TestValidateWarnings(t *testing.T) {
	raw := readRaw(t)
	raw["name"] = "veeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeery loooooooooooooooong name"
	delete(weights(raw, "onnx"), "opset_version")

	warnings := []string{}
	log := funcr.New(func(prefix, args string) { warnings = append(warnings, args) }, funcr.Options{})
	if _, err := Validate(raw, WithLogger(log)); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("Validate() warnings = %v, want 2", warnings)
	}
	if !strings.Contains(warnings[0], `"field"="name"`) {
		t.Errorf("first warning = %s, want the name field", warnings[0])
	}
	if !strings.Contains(warnings[1], "opset_version") {
		t.Errorf("second warning = %s, want opset_version", warnings[1])
	}
}

func TestSupportedFormatVersions(t *testing.T) {
	versions := SupportedFormatVersions()
	if versions[0] != "0.4.0" || versions[len(versions)-1] != MaxTestedFormatVersion {
		t.Errorf("SupportedFormatVersions() = %v", versions)
	}
	if len(versions) != 11 {
		t.Errorf("SupportedFormatVersions() has %d versions, want 11", len(versions))
	}
	for _, v := range []string{"0.3.6", "0.5.0", "0.4", "latest", "1.4.0", "0.4.3-rc1", "0.4.03"} {
		if IsSupportedFormatVersion(v) {
			t.Errorf("IsSupportedFormatVersion(%q) = true", v)
		}
	}
	for _, v := range []string{"0.4.0", "0.4.9", "0.4.42", " 0.4.1 "} {
		if !IsSupportedFormatVersion(v) {
			t.Errorf("IsSupportedFormatVersion(%q) = false", v)
		}
	}
}

func TestUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
		want    any
		wantErr bool
	}{
		{name: "unbounded range", content: "r: [-.inf, .inf]", key: "r", want: []any{"-inf", "inf"}},
		{name: "quoted unbounded range", content: `r: ["-inf", "inf"]`, key: "r", want: []any{"-inf", "inf"}},
		{name: "nan", content: "r: [.NaN, 1.0]", key: "r", want: []any{"nan", json.Number("1.0")}},
		{name: "version keeps trailing zero", content: "v: 1.10", key: "v", want: json.Number("1.10")},
		{name: "integer", content: "v: 12", key: "v", want: json.Number("12")},
		{name: "octal integer", content: "v: 0o17", key: "v", want: json.Number("15")},
		{name: "semver stays a string", content: "v: 0.4.9", key: "v", want: "0.4.9"},
		{name: "unquoted timestamp stays a string", content: "v: 2019-12-11T12:22:32Z", key: "v", want: "2019-12-11T12:22:32Z"},
		{name: "null", content: "v: ~", key: "v", want: nil},
		{name: "bool", content: "v: true", key: "v", want: true},
		{
			name:    "alias and merge",
			content: "base: &b {a: 1, b: x}\nv:\n  <<: *b\n  b: y",
			key:     "v",
			want:    map[string]any{"a": json.Number("1"), "b": "y"},
		},
		{name: "empty document", content: "", key: "v", want: nil},
		{name: "not a mapping", content: "- a\n- b", wantErr: true},
		{name: "invalid yaml", content: "a: [1, 2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Unmarshal([]byte(tt.content))
			if tt.wantErr {
				if !errors.IsErrCode(err, errors.ErrCodeSchemaInvalid) {
					t.Errorf("Unmarshal() error = %v, want %s", err, errors.ErrCodeSchemaInvalid)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got := raw[tt.key]; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Unmarshal()[%q] = %#v, want %#v", tt.key, got, tt.want)
			}
		})
	}
}

func TestParseUnboundedDataRange(t *testing.T) {
	content, err := os.ReadFile(filepath.Join("testdata", ManifestFileName))
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []string{"[-.inf, .inf]", "[-.Inf, .INF]", `["-inf", "inf"]`, "[null, null]", "[.nan, .nan]"} {
		manifest := strings.Replace(string(content), "data_range: [-.inf, .inf]", "data_range: "+r, 1)
		desc, err := Parse([]byte(manifest))
		if err != nil {
			t.Errorf("Parse() with data_range %s error = %v", r, err)
			continue
		}
		dr := desc.Inputs[0].DataRange
		if dr == nil || !math.IsInf(dr.Min, -1) || !math.IsInf(dr.Max, 1) {
			t.Errorf("Parse() with data_range %s = %+v, want unbounded", r, dr)
		}
	}
}
