package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/ui"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var infos []ui.ProviderInfo
		for _, p := range reposync.RegisteredProviders() {
			strategy, err := reposync.StrategyFor(p)
			if err != nil {
				return err
			}
			infos = append(infos, ui.ProviderInfo{
				Provider:   p,
				AutoEnable: strategy.AutoEnable(),
				Members:    canListMembers(p),
			})
		}

		if jsonOutput {
			type providerJSON struct {
				Provider   string `json:"provider"`
				AutoEnable bool   `json:"auto_enable"`
				Members    bool   `json:"members"`
				TokenEnv   string `json:"token_env"`
			}
			out := make([]providerJSON, 0, len(infos))
			for _, info := range infos {
				out = append(out, providerJSON{
					Provider:   string(info.Provider),
					AutoEnable: info.AutoEnable,
					Members:    info.Members,
					TokenEnv:   tokenEnv[info.Provider],
				})
			}
			return outputJSON(cmd.OutOrStdout(), out)
		}
		_, err := fmt.Fprint(cmd.OutOrStdout(), ui.RenderProviders(infos))
		return err
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
