package model

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mese79/spec-bioimage-io/pkg/spec"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "show tensors, weights and files of a model manifest",
		Example: `
  bioimageio inspect ./unet2d
		`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := BaseContext()
			defer cancel()
			if len(args) == 0 {
				return errors.New("at least one argument is required")
			}
			desc, err := spec.Load(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (format %s, license %s)\n", desc.Name, desc.Version, desc.FormatVersion, desc.License)
			if desc.Description != "" {
				fmt.Println(desc.Description)
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetTitle("Tensors")
			t.AppendHeader(table.Row{"Kind", "Name", "Axes", "Type", "Shape", "Processing"})
			for _, in := range desc.Inputs {
				t.AppendRow(table.Row{"input", in.Name, in.Axes, in.DataType, FormatShape(in.Shape), formatSteps(in.Preprocessing)})
			}
			for _, out := range desc.Outputs {
				t.AppendRow(table.Row{"output", out.Name, out.Axes, out.DataType, FormatShape(out.Shape), formatSteps(out.Postprocessing)})
			}
			t.Render()

			w := table.NewWriter()
			w.SetOutputMirror(os.Stdout)
			w.SetTitle("Weights")
			w.AppendHeader(table.Row{"Format", "Source", "SHA256"})
			for _, format := range desc.Weights.Formats() {
				entry, _ := desc.Weights.Entry(format)
				w.AppendRow(table.Row{format, entry.Source, shortDigest(entry.SHA256)})
			}
			w.Render()

			if files := desc.Files(); len(files) > 0 {
				f := table.NewWriter()
				f.SetOutputMirror(os.Stdout)
				f.SetTitle("Files")
				f.AppendHeader(table.Row{"File"})
				for _, file := range files {
					f.AppendRow(table.Row{file})
				}
				f.Render()
			}
			return nil
		},
	}
	return cmd
}

// FormatShape renders a declared shape, "?" marks an unconstrained dimension.
func FormatShape(s types.Shape) string {
	ints := func(v []int) string {
		parts := make([]string, len(v))
		for i, d := range v {
			if d == types.Wildcard {
				parts[i] = "?"
			} else {
				parts[i] = fmt.Sprint(d)
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	switch s.Kind() {
	case types.ShapeParametrized:
		return fmt.Sprintf("min %s step %s", ints(s.Min), ints(s.Step))
	case types.ShapeImplicit:
		return fmt.Sprintf("%s * %v + 2 * %v", s.ReferenceTensor, s.Scale, s.Offset)
	default:
		return ints(s.Fixed)
	}
}

func formatSteps(steps []types.ProcessingStep) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return strings.Join(names, " -> ")
}

func shortDigest(sha256 string) string {
	if len(sha256) > 16 {
		return sha256[:16]
	}
	return sha256
}
