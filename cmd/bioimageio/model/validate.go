package model

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/mese79/spec-bioimage-io/pkg/spec"
)

func NewValidateCmd() *cobra.Command {
	strict := false
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "validate a model manifest",
		Example: `
  bioimageio validate ./unet2d/rdf.yaml
  bioimageio validate ./unet2d --strict
		`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := BaseContext()
			defer cancel()
			if len(args) == 0 {
				return errors.New("at least one argument is required")
			}
			opts := []spec.Option{
				spec.WithLogger(stdr.New(log.New(os.Stderr, "", 0))),
			}
			if strict {
				opts = append(opts, spec.WithRejectUnknownFields())
			}
			desc, err := spec.Load(ctx, args[0], opts...)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (format %s) is valid: %d inputs, %d outputs, weights %s\n",
				desc.Name, desc.Version, desc.FormatVersion, len(desc.Inputs), len(desc.Outputs), joinFormats(desc.Weights.Formats()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", strict, "reject unknown fields")
	return cmd
}

func joinFormats[T ~string](formats []T) string {
	s := make([]string, len(formats))
	for i, f := range formats {
		s[i] = string(f)
	}
	return strings.Join(s, ", ")
}
