package cmd

import (
	"context"
	"fmt"
	"os"

	"log/slog"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Penlika/tkb/data"
	"github.com/Penlika/tkb/data/cache"
	"github.com/Penlika/tkb/events"
	"github.com/Penlika/tkb/internal/config"
	"github.com/Penlika/tkb/timetable"
	"github.com/Penlika/tkb/timetable/services/tdmu"
)

var (
	fetchSearchFlag   string
	fetchDayFlag      int
	fetchSemesterFlag string
	fetchTokenFlag    string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Runs one timetable fetch and prints the aggregated schedule",
	Long: `Runs the full fetch sequence against the registration system once,
folds in stored personal events, and prints the week buckets`,
	Run: func(cmd *cobra.Command, args []string) {
		log.SetLevel(log.InfoLevel)
		logger := log.WithFields(log.Fields{
			"job": "fetch",
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

		token := resolveToken(cacheStore)
		semester := fetchSemesterFlag
		if semester == "" {
			semester = cfg.Semester
		}

		client := tdmu.NewClient(cfg.BaseURL, logger)
		slogger := slog.Default()
		result, err := client.Fetch(ctx, *slogger, token, semester)
		if err != nil {
			logger.Errorf("Fetch failed: %v", err)
			os.Exit(1)
		}
		if err := timetable.SaveToken(cacheStore, token); err != nil {
			logger.Warnf("Could not cache token: %v", err)
		}

		var personal []events.PersonalEvent
		if os.Getenv("DB_CONN") != "" && cfg.UserID != "" {
			pool, err := data.NewPool(ctx)
			if err != nil {
				logger.Warnf("Could not connect to the database, classes only: %v", err)
			} else {
				store := events.NewPostgresStore(pool, slogger)
				personal, err = store.List(ctx, cfg.UserID)
				if err != nil {
					logger.Warnf("Could not list personal events, classes only: %v", err)
				}
			}
		}

		aggregation := timetable.Aggregate(result.Weeks, personal, timetable.Filter{
			Search: fetchSearchFlag,
			Day:    fetchDayFlag,
		})
		printAggregation(result.Semester, aggregation)
	},
}

func resolveToken(cacheStore timetable.Cache) string {
	if fetchTokenFlag != "" {
		return fetchTokenFlag
	}
	if token := os.Getenv("TKB_TOKEN"); token != "" {
		return token
	}
	if token, ok, err := timetable.LoadToken(cacheStore); err == nil && ok {
		return token
	}
	return ""
}

func printAggregation(semester timetable.Semester, aggregation timetable.Aggregation) {
	fmt.Printf("%s (%s)\n", semester.DisplayName, semester.Code)
	for _, week := range aggregation.Weeks {
		fmt.Printf("\n%s\n", week.DateRangeLabel)
		for _, entry := range week.Entries {
			marker := " "
			if entry.Kind == timetable.KindEvent {
				marker = "*"
			}
			fmt.Printf("  %s %-9s %-30s %s  %s\n",
				marker,
				timetable.DayName(entry.DayOfWeek),
				entry.Title,
				entry.TimeRange,
				entry.Location,
			)
		}
	}
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchSearchFlag, "search", "", "case-insensitive title filter")
	fetchCmd.Flags().IntVar(&fetchDayFlag, "day", 0, "day of week filter, 1 (Sunday) through 7 (Saturday)")
	fetchCmd.Flags().StringVar(&fetchSemesterFlag, "semester", "", "explicit semester code, defaults to the active one")
	fetchCmd.Flags().StringVar(&fetchTokenFlag, "token", "", "bearer token, defaults to TKB_TOKEN or the cached one")
}
