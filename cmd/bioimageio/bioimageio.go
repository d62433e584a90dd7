package main

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/mese79/spec-bioimage-io/cmd/bioimageio/model"
)

const ErrExitCode = 1

func main() {
	if err := NewBioimageioCmd().Execute(); err != nil {
		os.Exit(ErrExitCode)
	}
}

func NewBioimageioCmd() *cobra.Command {
	insecureSkipVerify := false
	cmd := model.NewBioimageioCmd()
	cmd.AddCommand(NewVersionCmd())
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if insecureSkipVerify {
			http.DefaultTransport.(*http.Transport).TLSClientConfig = &tls.Config{
				InsecureSkipVerify: true,
			}
		}
	}
	cmd.PersistentFlags().BoolVarP(&insecureSkipVerify, "insecure", "", insecureSkipVerify, "tls insecure skip verify")
	return cmd
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cmd.Root().Version)
		},
	}
}
