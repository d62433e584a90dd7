package model

import (
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mese79/spec-bioimage-io/pkg/fixture"
	"github.com/mese79/spec-bioimage-io/pkg/resolver"
	"github.com/mese79/spec-bioimage-io/pkg/spec"
)

func NewTestCmd() *cobra.Command {
	options := resolver.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "test",
		Short: "check the test fixtures of a manifest against its declared tensor shapes",
		Example: `
  bioimageio test ./unet2d
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
			report, checkerr := fixture.Check(ctx, desc, resolver.New(desc.Root, options))

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Kind", "Tensor", "File", "Shape", "Expected", "OK"})
			for _, r := range report.Inputs {
				t.AppendRow(table.Row{"input", r.Name, r.File, fmt.Sprint(r.Shape), fmt.Sprint(r.Expected), r.OK})
			}
			for _, r := range report.Outputs {
				t.AppendRow(table.Row{"output", r.Name, r.File, fmt.Sprint(r.Shape), fmt.Sprint(r.Expected), r.OK})
			}
			t.Render()
			return checkerr
		},
	}
	bindResolverFlags(cmd, options)
	return cmd
}
