// Package cli implements the carbonshift command line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/electricitymaps/carbonshift/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking CARBONSHIFT_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("CARBONSHIFT_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the carbonshift CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "carbonshift",
		Short: "carbonshift — carbon-aware deferral scheduler",
		Long:  "carbonshift submits, monitors, and cancels carbon-aware deferred steps.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(flagLogLevel, flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "carbonshift server URL (or CARBONSHIFT_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newListCmd(),
		newCancelCmd(),
		newPlanCmd(),
		newVersionCmd(),
	)

	return root
}
