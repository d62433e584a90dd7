package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mese79/spec-bioimage-io/pkg/packager"
	"github.com/mese79/spec-bioimage-io/pkg/spec"
	"github.com/mese79/spec-bioimage-io/pkg/types"
	"github.com/mese79/spec-bioimage-io/pkg/units"
)

func NewPackageCmd() *cobra.Command {
	options := packager.DefaultOptions()
	options.Format = ""
	priority := []string{}
	cmd := &cobra.Command{
		Use:   "package",
		Short: "pack a manifest and its files into a single archive",
		Example: `
  bioimageio package ./unet2d unet2d.zip
  bioimageio package ./unet2d unet2d.tar.gz --weights-priority-order onnx,torchscript
		`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := BaseContext()
			defer cancel()
			if len(args) < 2 {
				return errors.New("manifest and output arguments are required")
			}
			desc, err := spec.Load(ctx, args[0])
			if err != nil {
				return err
			}
			for _, p := range priority {
				options.WeightsPriorityOrder = append(options.WeightsPriorityOrder, types.WeightsFormat(p))
			}
			if options.Format == "" {
				options.Format = formatFromName(args[1])
			}
			if err := os.MkdirAll(filepath.Dir(args[1]), 0o755); err != nil {
				return err
			}
			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			descriptors, err := packager.Pack(ctx, desc, f, options)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(args[1])
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"File", "Size", "Digest"})
			for _, d := range descriptors {
				t.AppendRow(table.Row{d.Name, units.HumanSize(float64(d.Size)), d.Digest.Encoded()[:16]})
			}
			t.Render()
			fmt.Printf("package written to %s\n", args[1])
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&priority, "weights-priority-order", priority, "keep only the first present weights format of this list")
	cmd.Flags().StringVar(&options.Format, "format", options.Format, "archive format, zip or tar.gz, defaults to the output extension")
	bindResolverFlags(cmd, options.Resolver)
	return cmd
}

func formatFromName(name string) string {
	if strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz") {
		return packager.FormatTarGz
	}
	return packager.FormatZip
}

func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "unpack a package and validate the manifest it holds",
		Example: `
  bioimageio extract unet2d.zip ./unet2d
		`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := BaseContext()
			defer cancel()
			if len(args) < 2 {
				return errors.New("archive and directory arguments are required")
			}
			desc, err := packager.Extract(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s extracted to %s\n", desc.Name, desc.Version, desc.Root)
			return nil
		},
	}
	return cmd
}
