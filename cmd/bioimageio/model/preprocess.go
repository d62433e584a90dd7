package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mese79/spec-bioimage-io/pkg/processing"
	"github.com/mese79/spec-bioimage-io/pkg/spec"
	"github.com/mese79/spec-bioimage-io/pkg/tensor"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

type PreprocessOptions struct {
	Tensor     string
	References map[string]string
	DataType   string
}

func NewPreprocessCmd() *cobra.Command {
	options := &PreprocessOptions{DataType: "float32"}
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "apply the preprocessing of an input tensor to a .npy array",
		Example: `
  bioimageio preprocess ./unet2d input.npy preprocessed.npy
  bioimageio preprocess ./unet2d mask.npy --tensor mask --reference raw=raw.npy
		`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := BaseContext()
			defer cancel()
			if len(args) < 2 {
				return errors.New("manifest and input arguments are required")
			}
			into := ""
			if len(args) > 2 {
				into = args[2]
			}
			out, err := Preprocess(ctx, args[0], args[1], into, options)
			if err != nil {
				return err
			}
			if into == "" {
				fmt.Println(out.String())
			} else {
				fmt.Printf("preprocessed %v written to %s\n", out.Shape, into)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&options.Tensor, "tensor", options.Tensor, "input tensor name, defaults to the first input")
	cmd.Flags().StringToStringVar(&options.References, "reference", options.References, "arrays of reference tensors as name=file.npy")
	cmd.Flags().StringVar(&options.DataType, "dtype", options.DataType, "data type of the written array, float32 or float64")
	return cmd
}

func Preprocess(ctx context.Context, manifest, input, into string, options *PreprocessOptions) (*tensor.Tensor, error) {
	desc, err := spec.Load(ctx, manifest)
	if err != nil {
		return nil, err
	}
	var in types.TensorSpec
	if options.Tensor == "" {
		in = desc.Inputs[0]
	} else if t, ok := desc.InputTensor(options.Tensor); ok {
		in = t
	} else {
		return nil, fmt.Errorf("no input tensor %q in %s", options.Tensor, desc.Name)
	}
	pipeline, err := processing.Compile(processing.Preprocessing, in)
	if err != nil {
		return nil, err
	}

	t, err := readNPYFile(input, in.Axes)
	if err != nil {
		return nil, err
	}
	if err := spec.AcceptsShape(in, t.Shape); err != nil {
		return nil, err
	}
	refs := map[string]*tensor.Tensor{in.Name: t}
	for _, name := range pipeline.References() {
		if _, ok := refs[name]; ok {
			continue
		}
		file, ok := options.References[name]
		if !ok {
			return nil, fmt.Errorf("reference tensor %q requires --reference %s=<file.npy>", name, name)
		}
		ref, ok := desc.InputTensor(name)
		if !ok {
			return nil, fmt.Errorf("no input tensor %q in %s", name, desc.Name)
		}
		if refs[name], err = readNPYFile(file, ref.Axes); err != nil {
			return nil, err
		}
	}

	out, err := pipeline.Apply(t, refs)
	if err != nil {
		return nil, err
	}
	if into != "" {
		if err := writeNPYFile(into, out, options.DataType); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeNPYFile(path string, t *tensor.Tensor, dtype string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeNPYAndClose(f, t, dtype); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// writeNPYAndClose returns the error of Close as well.
func writeNPYAndClose(w io.WriteCloser, t *tensor.Tensor, dtype string) error {
	if err := tensor.WriteNPY(w, t, dtype); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func readNPYFile(path string, axes string) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := tensor.ReadNPY(f, axes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
