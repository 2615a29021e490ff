package cmd

import (
	"context"
	"fmt"
	"os"

	"log/slog"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Penlika/tkb/data/cache"
	"github.com/Penlika/tkb/internal/config"
	"github.com/Penlika/tkb/timetable"
	"github.com/Penlika/tkb/timetable/services/tdmu"
)

// semestersCmd represents the semesters command
var semestersCmd = &cobra.Command{
	Use:   "semesters",
	Short: "Lists the semesters the registration system knows about",
	Long:  `Asks the registration system for its semester list, falling back to the cached list when offline`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.WithFields(log.Fields{
			"job": "semesters",
		})
		ctx := context.Background()

		cfg, err := config.Load(configPathFlag)
		if err != nil {
			logger.Errorf("Could not load config: %v", err)
			os.Exit(1)
		}

		cacheStore, err := cache.Open(cfg.CachePath)
		if err != nil {
			logger.Errorf("Could not open cache: %v", err)
			os.Exit(1)
		}
		defer cacheStore.Close()

		client := tdmu.NewClient(cfg.BaseURL, logger)
		semesters, activeCode, err := client.ListSemesters(ctx, *slog.Default(), resolveToken(cacheStore))
		if err != nil {
			cached, ok, cacheErr := timetable.LoadSemesters(cacheStore)
			if cacheErr != nil || !ok {
				logger.Errorf("Could not list semesters and no cached list exists: %v", err)
				os.Exit(1)
			}
			logger.Warnf("Could not reach the registration system, showing the cached list: %v", err)
			semesters = cached
		} else if err := timetable.SaveSemesters(cacheStore, semesters); err != nil {
			logger.Warnf("Could not cache the semester list: %v", err)
		}

		for _, semester := range semesters {
			marker := " "
			if semester.Code == activeCode {
				marker = "*"
			}
			fmt.Printf("%s %-8s %s\n", marker, semester.Code, semester.DisplayName)
		}
	},
}

func init() {
	rootCmd.AddCommand(semestersCmd)
	semestersCmd.Flags().
		StringVar(&fetchTokenFlag, "token", "", "bearer token, defaults to TKB_TOKEN or the cached one")
}
