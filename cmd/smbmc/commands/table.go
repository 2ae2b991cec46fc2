package commands

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/aptpod/smb-go/transport/nic"
)

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func printInterfaces(w io.Writer, infos []*nic.Info) {
	table := newTable(w, "Address", "Index", "Speed", "Capabilities", "Score", "Usable")
	for _, info := range infos {
		table.Append([]string{
			info.Address().String(),
			fmt.Sprint(info.InterfaceIndex()),
			nic.FormatLinkSpeed(info.LinkSpeed()),
			info.Capabilities().String(),
			fmt.Sprint(info.Score()),
			fmt.Sprint(info.IsUsableForChannel()),
		})
	}
	table.Render()
}
