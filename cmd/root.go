// Package cmd holds the command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarket-bot",
	Short: "Polymarket opportunity scanner and trader",
	Long: `Scans Polymarket markets on a fixed interval, runs a family of detectors over
each snapshot, merges and ranks what they find, gates the ranked list through
exposure limits and Kelly sizing, and executes approved trades in dry-run or
live mode. Open positions are monitored until take-profit, stop-loss, time
exit or market resolution.

Configuration comes from the environment; a .env file in the working
directory is loaded first when present.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
