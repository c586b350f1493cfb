package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qinghe",
	Short: "Qinghe - earn-to-unlock screen time budget daemon",
	Long: `Qinghe turns minutes earned from plans, sleep and exercise into a shared
daily budget that unlocks restricted apps. It runs a countdown while the budget
is in use and drives an external restriction enforcer from Open Policy Agent
(OPA) decisions.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to the daemon when no subcommand is provided
		return runDaemon(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/qinghe/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
