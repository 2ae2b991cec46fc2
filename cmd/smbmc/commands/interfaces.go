package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aptpod/smb-go/transport/nic"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List local interfaces usable for channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := nic.DiscoverLocal()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No usable interfaces found.")
			return nil
		}
		printInterfaces(cmd.OutOrStdout(), infos)
		return nil
	},
}
