// Command reposync synchronizes the accounts and repositories a user can see
// on a code-hosting provider into a local catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/reposync/internal/config"
	"github.com/steveyegge/reposync/internal/debug"
	"github.com/steveyegge/reposync/internal/telemetry"
	"github.com/steveyegge/reposync/internal/ui"

	// Provider strategies register themselves with the engine.
	_ "github.com/steveyegge/reposync/internal/azuredevops"
	_ "github.com/steveyegge/reposync/internal/bitbucket"
	_ "github.com/steveyegge/reposync/internal/github"
	_ "github.com/steveyegge/reposync/internal/gitlab"
)

var (
	// Version is set at build time with -ldflags "-X main.Version=...".
	Version = "0.1.0"
	// Build is the commit the binary was built from.
	Build = "dev"
)

var (
	jsonOutput bool
	verbose    bool
	quiet      bool
	configFile string

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "reposync",
	Short: "reposync - provider account and repository catalog sync",
	Long: `Synchronize the accounts and repositories visible to a user on GitHub,
GitLab, Bitbucket or Azure DevOps into a local catalog.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		config.SetConfigFile(configFile)
		if err := config.Initialize(); err != nil {
			return err
		}
		debug.SetVerbose(verbose)
		debug.SetQuiet(quiet)
		if jsonOutput || !ui.ShouldUseColor() {
			ui.DisableColor()
		} else {
			ui.EnableColor()
		}
		if err := telemetry.Init(rootCtx, "reposync", Version); err != nil {
			debug.Logger().Warn("telemetry disabled", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./reposync.yaml or $XDG_CONFIG_HOME/reposync/reposync.yaml)")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			outputJSONError(err, errorCode(err))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
