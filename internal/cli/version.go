package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version mirrors the server's reported version.
const version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the carbonshift version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("carbonshift %s (%s)\n", version, runtime.Version())
		},
	}
}
