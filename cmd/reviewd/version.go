package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-review/internal/config"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reviewd %s (built %s)\n", config.Version, config.BuildTime)
		},
	}
}
