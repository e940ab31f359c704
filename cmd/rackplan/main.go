package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rackplan",
	Short: "rackplan - multi-robot warehouse task allocation and planning",
	Long: `rackplan allocates replenishment tasks across a robot fleet on a coarse warehouse model,
synthesizes a fine policy for every assignment and writes the schedules robots consult at runtime.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	configPath  string
	dbOverride  string
	dsnOverride string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "rackplan.yaml", "Path to the YAML config")
	rootCmd.PersistentFlags().StringVar(&dbOverride, "db", "", "Path to the SQLite ledger (overrides ledger.path)")
	rootCmd.PersistentFlags().StringVar(&dsnOverride, "dsn", "", "PostgreSQL DSN (overrides ledger.dsn)")

	// Add subcommands
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
