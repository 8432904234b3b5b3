// Package cli implements the vecmigrate command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "vecmigrate",
	Short:        "Migrate portable vector datasets into a managed vector-index service",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `vecmigrate reads a dataset directory described by a VDF_META.json
manifest, reconciles the target index, endpoint, and deployment, and
streams the dataset's rows into the index in bounded batches.`,
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
