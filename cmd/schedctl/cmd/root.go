package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dbPath       string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:           "schedctl",
	Short:         "Operate the exam and timetable schedule engine locally",
	Long:          `schedctl generates, inspects and rolls back committed schedules against a local SQLite store.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command with a context cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default $SCHEDCTL_DB or ./schedule-engine.db)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or csv (show only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")
}

func initConfig() {
	viper.SetEnvPrefix("SCHEDCTL")
	viper.AutomaticEnv()
	viper.SetDefault("db", "./schedule-engine.db")
	if dbPath == "" {
		dbPath = viper.GetString("db")
	}
}
