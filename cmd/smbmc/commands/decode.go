package commands

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aptpod/smb-go/transport/nic"
)

var decodeHex bool

var decodeCmd = &cobra.Command{
	Use:   "decode <file>",
	Short: "Decode NETWORK_INTERFACE_INFO records",
	Long: `Decode the output buffer of FSCTL_QUERY_NETWORK_INTERFACE_INFO.

Malformed records are reported and skipped; the remaining records are still listed.

Examples:
  # Decode a raw capture
  smbmc decode ioctl-response.bin

  # Decode a hex dump
  smbmc decode --hex ioctl-response.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := readRecords(args[0])
		if infos == nil && err != nil {
			return err
		}
		printInterfaces(cmd.OutOrStdout(), infos)
		if err != nil {
			cmd.PrintErrf("Warning: %v\n", err)
		}
		return nil
	},
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeHex, "hex", false, "treat the file as a hex dump")
}

// readRecords returns the records it could decode together with any decode error.
func readRecords(path string) ([]*nic.Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if decodeHex {
		data, err = hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
		if err != nil {
			return nil, fmt.Errorf("invalid hex dump: %w", err)
		}
	}
	return nic.DecodeList(data)
}
