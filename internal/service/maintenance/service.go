package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/subscription-archiver/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// TempFileMaxAge is the age after which a temp file counts as abandoned
	TempFileMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		TempFileMaxAge: time.Hour,
	}
}

// Service cleans up after runs that did not exit cleanly.
// runs is optional.
type Service struct {
	config *Config
	fs     port.TempCleaner
	runs   port.RunSweeper
	logger *zap.Logger
}

// New creates a new maintenance Service
func New(cfg *Config, fs port.TempCleaner, runs port.RunSweeper, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config: cfg,
		fs:     fs,
		runs:   runs,
		logger: logger,
	}
}

// Sweep runs every cleanup task once. Failures are logged and never
// returned; only a canceled context stops the sweep early.
func (s *Service) Sweep(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.abandonRuns()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.cleanupTempFiles()
	return nil
}

// abandonRuns closes ledger runs whose process exited mid-run
func (s *Service) abandonRuns() {
	if s.runs == nil {
		return
	}
	count, err := s.runs.AbandonRuns()
	if err != nil {
		s.logger.Error("failed to close abandoned runs", zap.Error(err))
	} else if count > 0 {
		s.logger.Info("marked abandoned runs as interrupted", zap.Int("count", count))
	}
}

// cleanupTempFiles removes old temporary files from the output directory
func (s *Service) cleanupTempFiles() {
	count, err := s.fs.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
	} else if count > 0 {
		s.logger.Info("cleaned up old temp files from output directory", zap.Int("count", count))
	}
}
