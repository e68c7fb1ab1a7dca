package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagArchive string
)

var rootCmd = &cobra.Command{
	Use:   "newsfeed",
	Short: "Incrementally paged news reader",
	Long: "newsfeed pages NewsAPI queries on demand, shares loaded pages between views of the same query, " +
		"and renders each change as a minimal list update.",
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagArchive, "archive", "", "read pages from this SQLite archive instead of NewsAPI")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pagesCmd)
	rootCmd.AddCommand(importCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("newsfeed %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
