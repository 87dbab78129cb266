package cmd

import (
	"fmt"

	"github.com/fahadahaf/chat-ui/db"
	"github.com/fahadahaf/chat-ui/internal/config"
	"github.com/fahadahaf/chat-ui/internal/log"
)

// runMigrate applies pending database migrations and exits.
func runMigrate(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied")
	return nil
}
