package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/reposync/internal/config"
	"github.com/steveyegge/reposync/internal/ui"
)

// secretKeys are masked by `config show`.
var secretKeys = map[string]bool{
	"store.password": true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit configuration",
	Long: `Configuration is layered: built-in defaults, then reposync.yaml (working
directory, else $XDG_CONFIG_HOME/reposync), then REPOSYNC_* environment
variables, then flags. REPOSYNC_STORE_BACKEND overrides store.backend.

Examples:
  reposync config show
  reposync config show --file
  reposync config get store.backend
  reposync config set store.backend dolt`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fileOnly, _ := cmd.Flags().GetBool("file")
		out := cmd.OutOrStdout()

		if fileOnly {
			dir := "."
			if used := config.ConfigFileUsed(); used != "" {
				dir = filepath.Dir(used)
			}
			local := config.LoadLocalConfig(dir)
			if jsonOutput {
				return outputJSON(out, local)
			}
			data, err := yaml.Marshal(local)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = fmt.Fprintf(out, "%s\n%s", ui.RenderCategory(filepath.Join(dir, config.FileName)), data)
			return err
		}

		keys := config.AllKeys()
		sort.Strings(keys)
		values := make(map[string]string, len(keys))
		for _, k := range keys {
			values[k] = displayValue(k)
		}

		if jsonOutput {
			return outputJSON(out, map[string]interface{}{
				"file":     config.ConfigFileUsed(),
				"settings": values,
			})
		}

		var sb strings.Builder
		file := config.ConfigFileUsed()
		if file == "" {
			file = ui.RenderMuted("(no config file, defaults and environment only)")
		}
		sb.WriteString(ui.RenderKeyValue("Config file", file))
		sb.WriteString("\n")
		sb.WriteString(ui.RenderSeparator())
		sb.WriteString("\n")
		for _, k := range keys {
			sb.WriteString(ui.RenderKeyValue(k, values[k]))
			sb.WriteString("\n")
		}
		_, err := fmt.Fprint(out, sb.String())
		return err
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]string{"key": key, "value": displayValue(key)})
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), displayValue(key))
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a value to reposync.yaml",
	Long: `Write a value to the config file in use, or to ./reposync.yaml when there is
none. Comments and other keys are preserved.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		path := config.ConfigFileUsed()
		if path == "" {
			path = config.FileName
		}
		if err := config.SetYamlConfig(path, key, value); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]string{"key": key, "value": value, "file": path})
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s Set %s in %s\n", ui.RenderPassIcon(), key, path)
		return err
	},
}

func displayValue(key string) string {
	if secretKeys[key] {
		if config.GetString(key) == "" {
			return ""
		}
		return "********"
	}
	if s := config.GetString(key); s != "" {
		return s
	}
	return strings.Join(config.GetStringSlice(key), ",")
}

func init() {
	configShowCmd.Flags().Bool("file", false, "Show only what the config file sets")
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
