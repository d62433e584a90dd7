package model

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mese79/spec-bioimage-io/pkg/progress"
	"github.com/mese79/spec-bioimage-io/pkg/resolver"
	"github.com/mese79/spec-bioimage-io/pkg/spec"
	"github.com/mese79/spec-bioimage-io/pkg/types"
	"github.com/mese79/spec-bioimage-io/pkg/units"
)

func NewResolveCmd() *cobra.Command {
	options := resolver.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "fetch every file a manifest references and verify its sha256",
		Example: `
  bioimageio resolve ./unet2d
  bioimageio resolve ./unet2d --s3-url http://minio:9000 --timeout 2m
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
			resolved, err := Resolve(ctx, desc, options)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"File", "Type", "Size", "Digest", "Modified"})
			for _, d := range resolved {
				modified := ""
				if !d.Modified.IsZero() {
					modified = d.Modified.Format(time.RFC3339)
				}
				t.AppendRow(table.Row{d.Name, d.MediaType, units.HumanSize(float64(d.Size)), d.Digest.Encoded()[:16], modified})
			}
			t.Render()
			return nil
		},
	}
	bindResolverFlags(cmd, options)
	return cmd
}

// Resolve verifies every artifact of desc with a progress bar per file.
func Resolve(ctx context.Context, desc *types.ResourceDescriptor, options *resolver.Options) ([]types.Descriptor, error) {
	r := resolver.New(desc.Root, options)
	artifacts := resolver.Artifacts(desc)
	results := make([]types.Descriptor, len(artifacts))

	runctx, stop := context.WithCancel(ctx)
	defer stop()
	mb := progress.NewMultiBar(os.Stdout, 40, options.Concurrency)
	go mb.Run(runctx)

	for i := range artifacts {
		i := i
		mb.Go(artifacts[i].Ref, "pending", func(b *progress.Bar) error {
			d, err := r.Resolve(ctx, artifacts[i], b.SetProgress)
			if err != nil {
				return err
			}
			results[i] = d
			return nil
		})
	}
	if err := mb.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
