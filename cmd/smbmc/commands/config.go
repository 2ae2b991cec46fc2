package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aptpod/smb-go/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and print the effective configuration",
	Long: `Load the configuration from --config and SMBMC_* environment variables,
validate it and print every setting.

Examples:
  smbmc config --config /etc/smbmc.yaml
  SMBMC_MAX_CHANNELS=8 smbmc config`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		settings := config.Settings(*cfg)
		table := newTable(cmd.OutOrStdout(), "Key", "Value")
		for _, k := range config.Keys() {
			table.Append([]string{k, fmt.Sprint(settings[k])})
		}
		table.Render()
		return nil
	},
}
