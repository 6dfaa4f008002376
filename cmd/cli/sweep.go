package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"shoprelay/internal/config"
	"shoprelay/internal/services"
)

// sweepCmd runs one notification sweep and exits, for cron-style
// scheduling outside the long-lived server.
var sweepCmd = &cobra.Command{
	Use:   "sweep [name]",
	Short: "Run a notification sweep once",
	Long: `Runs one of the notification sweeps once and prints its counts.
Available sweeps: abandoned-carts, low-stock, back-in-stock.`,
	Args: cobra.ExactArgs(1),
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sender, err := services.NewTelegramSender(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram sender: %w", err)
	}

	dispatcher := services.NewDispatcher(db, appLogger, sender, cfg)
	result, err := dispatcher.Run(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Sweep %s done: attempted=%d succeeded=%d failed=%d\n",
		args[0], result.Attempted, result.Succeeded, result.Failed)
	return nil
}
