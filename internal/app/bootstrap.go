package app

import (
	"log/slog"

	"quotefuse/internal/infra"
	"quotefuse/internal/storage"
)

// Bootstrap orchestrates process startup: config, logging, journal.
type Bootstrap struct {
	Config  *infra.Config
	Journal *storage.Journal
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization. Any error here is fatal;
// the process never trades on a partially initialized stack.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	if cfg.Journal.Enabled {
		journal, err := storage.NewJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		b.Journal = journal
		slog.Info("journal initialized", slog.String("path", cfg.Journal.Path))
	}

	slog.Info("bootstrap complete",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("symbol", cfg.Quoting.Symbol))
	return nil
}
