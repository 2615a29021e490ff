package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Penlika/tkb/internal/config"
	"github.com/Penlika/tkb/internal/logging"
	"github.com/Penlika/tkb/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the schedule api service",
	Long:  `Runs the schedule api service`,
	Run: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verboseFlag {
			level = logging.LevelReportIO
		}
		logger := slog.New(logging.NewMultiHandler(logging.NewHandler(os.Stdout, &logging.Options{
			AddSource: verboseFlag,
			Level:     level,
		})))

		cfg, err := config.Load(configPathFlag)
		if err != nil {
			logger.Error("could not load config", "err", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := server.Serve(ctx, cfg, logger); err != nil {
			logger.Error("server stopped", "err", err)
			os.Exit(1)
		}
	},
}

var verboseFlag bool

func init() {
	appCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "log request/response detail")
}
