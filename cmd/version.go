// File: cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the application version.
// This value is intended to be set at build time using ldflags.
// Example: go build -ldflags "-X github.com/xkilldash9x/pilot-cli/cmd.Version=1.0.0"
var Version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pilot version %s\n", Version)
		},
	}
}
