package cmd

import (
	"github.com/spf13/cobra"
)

// appCmd represents the app command
var appCmd = &cobra.Command{
	Use:   "app",
	Short: "used to run the tkb service",
	Long: `The tkb service keeps the aggregated weekly schedule fresh and
serves it as a json and websocket api (this command is not ran directly)`,
}

func init() {
	rootCmd.AddCommand(appCmd)
}
