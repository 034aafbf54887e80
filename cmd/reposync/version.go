package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]string{
				"version": Version,
				"build":   Build,
				"go":      runtime.Version(),
			})
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "reposync version %s (%s)\n", Version, Build)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
