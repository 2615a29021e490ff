package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Penlika/tkb/data"
	"github.com/Penlika/tkb/events"
	"github.com/Penlika/tkb/internal/config"
)

var (
	eventTitleFlag     string
	eventDateFlag      string
	eventStartFlag     int
	eventPeriodsFlag   int
	eventLocationFlag  string
	eventOrganizerFlag string
)

// addEventCmd represents the addevent command
var addEventCmd = &cobra.Command{
	Use:   "addevent",
	Short: "add a personal event for the configured user",
	Long:  `stores a personal event; running aggregators pick it up live`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := config.Load(configPathFlag)
		if err != nil {
			fmt.Printf("Could not load config %v\n", err)
			os.Exit(1)
		}
		if cfg.UserID == "" {
			fmt.Println("Set user_id in the config first.")
			os.Exit(1)
		}

		date, err := time.Parse("2006-01-02", eventDateFlag)
		if err != nil {
			fmt.Printf("Date must look like 2006-01-02, got %q\n", eventDateFlag)
			os.Exit(1)
		}

		dbPool, err := data.NewPool(ctx)
		if err != nil {
			fmt.Printf("Could not connect to the database %v\n", err)
			os.Exit(1)
		}
		store := events.NewPostgresStore(dbPool, slog.Default())

		id, err := store.Put(ctx, cfg.UserID, events.PersonalEvent{
			Title:         eventTitleFlag,
			Date:          date,
			StartPeriod:   eventStartFlag,
			PeriodCount:   eventPeriodsFlag,
			Location:      eventLocationFlag,
			OrganizerName: eventOrganizerFlag,
		})
		if err != nil {
			slog.Error("Failed to store event", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Stored event %s\n", id)
	},
}

func init() {
	rootCmd.AddCommand(addEventCmd)
	addEventCmd.Flags().StringVar(&eventTitleFlag, "title", "", "event title")
	addEventCmd.Flags().StringVar(&eventDateFlag, "date", "", "calendar date, 2006-01-02")
	addEventCmd.Flags().IntVar(&eventStartFlag, "start", 0, "first period of the event")
	addEventCmd.Flags().IntVar(&eventPeriodsFlag, "periods", 1, "how many periods it spans")
	addEventCmd.Flags().StringVar(&eventLocationFlag, "location", "", "where it happens")
	addEventCmd.Flags().StringVar(&eventOrganizerFlag, "organizer", "", "who runs it")
	addEventCmd.MarkFlagRequired("title")
	addEventCmd.MarkFlagRequired("date")
}
