// Command fsbridge runs the worker that exposes local directories to
// remote peers over WebRTC data channels.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

var configFile string

// rootCmd parents all other commands in the hierarchy.
var rootCmd = &cobra.Command{
	Use:           "fsbridge",
	Short:         "fsbridge exposes local directories to remote peers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file (default is $XDG_CONFIG_HOME/fsbridge/config.yaml)")

	rootCmd.AddCommand(serveCmd, initCmd, mountsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
