// Package commands implements the smbmc CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time.
	Version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "smbmc",
	Short: "Inspect SMB3 multi-channel interface data",
	Long: `smbmc inspects the data an SMB3 client uses for multi-channel:
local network interfaces, NETWORK_INTERFACE_INFO records returned by a server,
the channel pairings planned from both, and the effective configuration.

Use "smbmc [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(interfacesCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "smbmc %s\n", Version)
	},
}
