package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor bool
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "pitcharena",
	Short: "Asynchronous AI pitch evaluation service",
	Long: `pitcharena scores startup pitches with an LLM judge: submissions are
queued, evaluated one at a time, and posted to a public leaderboard.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pitcharena version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pitcharena %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
