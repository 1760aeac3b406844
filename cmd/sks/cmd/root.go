package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sks",
	Short: "sks is a session key server",
	Long: `A session key server that issues, validates, supersedes and revokes
opaque session tokens on behalf of client applications, scoped by realm.
Complete documentation is available at https://github.com/jmcleod/sks`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
