package main

import (
	"fmt"
	"os"

	"github.com/aptpod/smb-go/cmd/smbmc/commands"
)

var version = "dev"

func main() {
	commands.Version = version

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
