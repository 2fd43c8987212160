package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped by the release build.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the loginpilot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("loginpilot %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
