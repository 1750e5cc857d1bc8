package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:          "road-extractor",
	Short:        "Road extraction pipeline: API server, stage workers and migrations",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}
