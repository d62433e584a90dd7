package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mese79/spec-bioimage-io/pkg/spec"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

const ReadmeFileName = "README.md"

func NewInitCmd() *cobra.Command {
	force := false
	cmd := &cobra.Command{
		Use:   "init",
		Short: "write a model manifest skeleton into a directory",
		Example: `
  bioimageio init ./unet2d
		`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := BaseContext()
			defer cancel()
			if len(args) == 0 {
				return errors.New("at least one argument is required")
			}
			return InitModel(ctx, args[0], force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing manifest")
	return cmd
}

func InitModel(ctx context.Context, path string, force bool) error {
	manifestfile := filepath.Join(path, spec.ManifestFileName)
	if _, err := os.Stat(manifestfile); err == nil && !force {
		return fmt.Errorf("manifest %s already exists", manifestfile)
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create model directory %s: %w", path, err)
	}

	name := filepath.Base(path)
	if abs, err := filepath.Abs(path); err == nil {
		name = filepath.Base(abs)
	}
	now := time.Now().UTC().Truncate(time.Second)
	skeleton := &types.ResourceDescriptor{
		FormatVersion: spec.MaxTestedFormatVersion,
		Type:          spec.ResourceTypeModel,
		Name:          name,
		Version:       "0.1.0",
		Description:   "<describe the model>",
		License:       "CC-BY-4.0",
		Authors:       []types.Author{{Name: "<author>"}},
		Documentation: ReadmeFileName,
		Tags:          []string{"<tag>"},
		Timestamp:     &now,
		Inputs: []types.TensorSpec{{
			Name:     "input0",
			Axes:     "bcyx",
			DataType: "float32",
			Shape:    types.Shape{Min: []int{1, 1, 64, 64}, Step: []int{0, 0, 16, 16}},
			Preprocessing: []types.ProcessingStep{{
				Name:   "zero_mean_unit_variance",
				Kwargs: map[string]any{"mode": "per_sample", "axes": "yx"},
			}},
		}},
		Outputs: []types.TensorSpec{{
			Name:     "output0",
			Axes:     "bcyx",
			DataType: "float32",
			Shape:    types.Shape{ReferenceTensor: "input0", Scale: []float64{1, 1, 1, 1}, Offset: []float64{0, 0, 0, 0}},
		}},
		TestInputs:  []string{"test_input.npy"},
		TestOutputs: []string{"test_output.npy"},
		Weights: types.Weights{
			Onnx: &types.OnnxWeights{
				WeightsEntry: types.WeightsEntry{Source: "weights.onnx", SHA256: "<sha256 of weights.onnx>"},
				OpsetVersion: 15,
			},
		},
	}
	content, err := spec.Marshal(skeleton)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestfile, content, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", manifestfile, err)
	}

	readmefile := filepath.Join(path, ReadmeFileName)
	if _, err := os.Stat(readmefile); errors.Is(err, os.ErrNotExist) {
		readme := fmt.Sprintf("# %s\n\nAwesome model description.\n", name)
		if err := os.WriteFile(readmefile, []byte(readme), 0o644); err != nil {
			return err
		}
	}
	fmt.Printf("Model manifest initialized in %s\n", manifestfile)
	return nil
}
