// Package cmd provides the command-line interface of octacore.
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "octacore",
	Short: "octacore simulates an eight-core clustered coherence system.",
	Long: `octacore is a functional model of an eight-core clustered ` +
		`processing system: a directory-coherent NUMA cache hierarchy, ` +
		`hardware synchronization primitives, and an interrupt distributor.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	// A .env file can preset OCTACORE_* variables used as flag defaults.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
