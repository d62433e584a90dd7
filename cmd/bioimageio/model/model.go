package model

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/mese79/spec-bioimage-io/pkg/resolver"
	"github.com/mese79/spec-bioimage-io/pkg/version"
)

func NewBioimageioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bioimageio",
		Short:   "validate, inspect and package bioimage.io model manifests",
		Version: version.Get().String(),
	}
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewInspectCmd())
	cmd.AddCommand(NewResolveCmd())
	cmd.AddCommand(NewPreprocessCmd())
	cmd.AddCommand(NewTestCmd())
	cmd.AddCommand(NewPackageCmd())
	cmd.AddCommand(NewExtractCmd())
	return cmd
}

func BaseContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	if os.Getenv("DEBUG") == "1" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		stdr.SetVerbosity(1)
		ctx = logr.NewContext(ctx, stdr.NewWithOptions(log.Default(), stdr.Options{LogCaller: stdr.Error}))
	}
	return ctx, cancel
}

func bindResolverFlags(cmd *cobra.Command, options *resolver.Options) {
	flags := cmd.Flags()
	flags.DurationVar(&options.Timeout, "timeout", options.Timeout, "timeout for resolving a single file")
	flags.IntVar(&options.Concurrency, "concurrency", options.Concurrency, "files resolved in parallel")
	flags.StringVar(&options.CacheDir, "cache-dir", options.CacheDir, "directory for downloaded files, defaults to $BIOIMAGEIO_CACHE_DIR or the system temp dir")
	flags.IntVar(&options.Retries, "retries", options.Retries, "attempts for http downloads")
	flags.StringVar(&options.S3.URL, "s3-url", options.S3.URL, "s3 endpoint url, defaults to $BIOIMAGEIO_S3_URL")
	flags.StringVar(&options.S3.Region, "s3-region", options.S3.Region, "s3 region")
	flags.StringVar(&options.S3.AccessKey, "s3-access-key", options.S3.AccessKey, "s3 access key, the default credential chain applies when empty")
	flags.StringVar(&options.S3.SecretKey, "s3-secret-key", options.S3.SecretKey, "s3 secret key")
	flags.BoolVar(&options.S3.PathStyle, "s3-path-style", options.S3.PathStyle, "use path style s3 addressing")
}
