package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/creastat/sessionlock/cmd/lock"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sessionlock",
		Short: "distributed session state locking",
		Long: fmt.Sprintf(`sessionlock (v%s)

Exclusive access to web session state kept in a shared key-value store,
either through guarded read and write round trips or through an atomic
server-side module.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sessionlock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sessionlock v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
