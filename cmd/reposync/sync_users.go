package main

import (
	"github.com/spf13/cobra"
)

var syncUsersCmd = &cobra.Command{
	Use:   "sync-users",
	Short: "Import organization members and their roles",
	Long: `Import the members of the user's organizations and record each member's
role. Organizations must already be in the catalog, so this needs a persistent
store (store.backend dolt or dolt-server) and a prior sync.

Accounts whose provider cannot list members (Azure DevOps) are skipped.

Examples:
  reposync sync-users --provider github
  reposync sync-users --provider gitlab --account 12`,
	RunE: runSyncUsers,
}

func init() {
	syncUsersCmd.Flags().String("provider", "", "Provider: github, gitlab, bitbucket, azuredevops")
	syncUsersCmd.Flags().String("token", "", "Provider access token (default: provider environment variable)")
	syncUsersCmd.Flags().String("url", "", "Provider API URL or Azure DevOps organization (default: <provider>.url)")
	syncUsersCmd.Flags().String("fixture", "", "Read the provider's view from a YAML or TOML snapshot")
	syncUsersCmd.Flags().StringSlice("account", nil, "Only these organizations (provider ids); default all")
	rootCmd.AddCommand(syncUsersCmd)
}

func runSyncUsers(cmd *cobra.Command, args []string) error {
	providerFlag, _ := cmd.Flags().GetString("provider")
	token, _ := cmd.Flags().GetString("token")
	baseURL, _ := cmd.Flags().GetString("url")
	fixturePath, _ := cmd.Flags().GetString("fixture")
	only, _ := cmd.Flags().GetStringSlice("account")

	provider, client, _, err := resolveClient(providerFlag, fixturePath, clientOptions{Token: token, URL: baseURL})
	if err != nil {
		return err
	}

	ctx := rootCtx
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	engine := newEngine(store)
	defer engine.Wait()

	sess, listing, err := newSession(ctx, provider, client, store)
	if err != nil {
		return err
	}

	orgs := listing.Organizations
	if len(only) > 0 {
		wanted := make(map[string]bool, len(only))
		for _, id := range only {
			wanted[id] = true
		}
		orgs = orgs[:0:0]
		for _, org := range listing.Organizations {
			if wanted[org.ProviderInternalID] {
				orgs = append(orgs, org)
			}
		}
	}

	imported := importMembers(ctx, engine, sess, store, orgs, cmd.OutOrStdout())
	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
			"provider":          provider,
			"accounts":          len(orgs),
			"accounts_imported": imported,
		})
	}
	return nil
}
