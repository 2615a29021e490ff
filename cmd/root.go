package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tkb",
	Short: "tkb aggregates a university timetable with personal events into one weekly schedule",
	Long: `tkb can do one-off timetable fetches or act as a service
keeping the aggregated schedule fresh and serving it over an api`,
}

var configPathFlag string

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVar(&configPathFlag, "config", "tkb.yaml", "path to the yaml config file")
}
