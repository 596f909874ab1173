package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/amppipe/core/amp"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X github.com/gaurav-prasanna/amppipe/cmd.version=v1.2.0"
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the conversion steps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "amppipe %s\n", version)
		fmt.Fprintf(out, "steps: %s\n", strings.Join(amp.StepNames(), ", "))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return appConfig.WriteYAML(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, configCmd)
}
