package commands

import (
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"

	"github.com/aptpod/smb-go/internal/config"
	"github.com/aptpod/smb-go/multichannel"
	"github.com/aptpod/smb-go/transport/nic"
)

var (
	planLocal     []string
	planLinkSpeed uint64
)

var planCmd = &cobra.Command{
	Use:   "plan <file>",
	Short: "Show the channels planned for a server's interface records",
	Long: `Pair local interfaces with the interfaces decoded from <file> the same way
the channel manager does, limited by max_channels from the configuration.

Examples:
  # Plan against the host's interfaces
  smbmc plan ioctl-response.bin

  # Plan against explicit local addresses
  smbmc plan --local 10.0.0.1,10.0.1.1 ioctl-response.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		remote, err := readRecords(args[0])
		if err != nil {
			cmd.PrintErrf("Warning: %v\n", err)
		}
		local, err := localInterfaces()
		if err != nil {
			return err
		}

		maxChannels := cfg.MaxChannels
		if !cfg.Enabled {
			maxChannels = 1
		}
		local, remote = nic.FilterUsable(local), nic.FilterUsable(remote)
		nic.SortByScore(local)
		nic.SortByScore(remote)
		pairings := multichannel.PlanPairings(local, remote, maxChannels)
		if len(pairings) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pairings available.")
			return nil
		}

		table := newTable(cmd.OutOrStdout(), "#", "Local", "Remote", "Remote Speed")
		for i, p := range pairings {
			table.Append([]string{
				fmt.Sprint(i + 1),
				p.Local.Address().String(),
				p.Remote.Address().String(),
				nic.FormatLinkSpeed(p.Remote.LinkSpeed()),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	planCmd.Flags().StringSliceVar(&planLocal, "local", nil, "local addresses to use instead of discovering them")
	planCmd.Flags().Uint64Var(&planLinkSpeed, "local-speed", nic.DefaultLinkSpeed, "link speed in bits per second assumed for --local addresses")
}

func localInterfaces() ([]*nic.Info, error) {
	if len(planLocal) == 0 {
		return nic.DiscoverLocal()
	}
	infos := make([]*nic.Info, 0, len(planLocal))
	for i, s := range planLocal {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --local address: %w", err)
		}
		infos = append(infos, nic.NewInfo(addr, uint32(i+1), planLinkSpeed, 0))
	}
	return infos, nil
}
