// Package cmd wires the fraudguard command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fraudguard",
	Short: "Credit card fraud detection",
	Long:  "FraudGuard scores card transactions (V1..V5, Amount) with a pre-trained binary classifier.",
	// Errors are printed once by main.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to the YAML config file (a missing file means defaults)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(versionCmd)
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}
