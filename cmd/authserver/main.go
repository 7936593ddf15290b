package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "authserver",
	Short:   "OAuth2 authorization server",
	Long:    `A standalone OAuth2 authorization server with the authorization code, client credentials, and password grants, backed by in-memory or SQLite storage.`,
	Version: Version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
