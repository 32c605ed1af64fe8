package archiver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/port"
	"github.com/vertextoedge/subscription-archiver/internal/service/document"
)

// Config contains archiver configuration
type Config struct {
	// FailFast stops the batch at the first product that fails after its
	// summary was fetched. Summary failures never stop the batch.
	FailFast bool

	// MinFreeBytes aborts the run before any product when the output volume
	// has less free space. Zero disables the check.
	MinFreeBytes uint64

	Render port.RenderOptions
}

// DefaultConfig returns default archiver configuration
func DefaultConfig() *Config {
	return &Config{
		Render: port.RenderOptions{
			PrintBackground: true,
			Margin:          port.Margin{Top: 30, Bottom: 30, Left: 20, Right: 20},
		},
	}
}

// Deps are the collaborators of an Archiver.
// Ledger and Progress are optional.
type Deps struct {
	Auth      port.Authenticator
	Catalog   port.CatalogClient
	Jar       port.SessionJar
	Fetcher   port.AssetFetcher
	Archive   port.Archive
	Assembler *document.Assembler
	Renderer  port.Renderer
	Ledger    port.Ledger
	Progress  port.ProgressReporter
}

// Archiver walks the catalog product by product and archives each one
type Archiver struct {
	config    *Config
	auth      port.Authenticator
	catalog   port.CatalogClient
	jar       port.SessionJar
	fetcher   port.AssetFetcher
	archive   port.Archive
	guard     *ResumeGuard
	assembler *document.Assembler
	renderer  port.Renderer
	ledger    port.Ledger
	progress  port.ProgressReporter
	logger    *zap.Logger

	mu     sync.RWMutex
	tokens domain.Tokens
	runID  string
}

// New creates a new Archiver
func New(cfg *Config, deps Deps, logger *zap.Logger) *Archiver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Archiver{
		config:    cfg,
		auth:      deps.Auth,
		catalog:   deps.Catalog,
		jar:       deps.Jar,
		fetcher:   deps.Fetcher,
		archive:   deps.Archive,
		guard:     NewResumeGuard(deps.Archive),
		assembler: deps.Assembler,
		renderer:  deps.Renderer,
		ledger:    deps.Ledger,
		progress:  deps.Progress,
		logger:    logger,
	}
}

// Login authenticates once. The archiver owns the access token and hands it
// to every catalog call and authorized asset request of the run.
func (a *Archiver) Login(ctx context.Context, creds domain.Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return &domain.ConfigError{Field: "auth", Err: domain.ErrMissingCredentials}
	}

	tokens, err := a.auth.Authenticate(ctx, creds)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.tokens = tokens
	a.mu.Unlock()

	a.logger.Info("authenticated", zap.String("username", creds.Username))
	return nil
}

func (a *Archiver) accessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tokens.Access
}

// Run archives the products in order, one at a time.
// Products that fail are collected and returned together unless FailFast is set.
func (a *Archiver) Run(ctx context.Context, productIDs []string) error {
	start := time.Now()

	if err := a.checkDiskSpace(); err != nil {
		return err
	}

	a.startRun(len(productIDs))

	a.logger.Info("archive run started",
		zap.String("run_id", a.currentRunID()),
		zap.Int("products", len(productIDs)),
		zap.String("output_dir", a.archive.RootDir()),
		zap.Bool("fail_fast", a.config.FailFast))

	var (
		failures *multierror.Error
		skipped  int
	)

	err := sequential(ctx, len(productIDs), func(ctx context.Context, i int) error {
		id := productIDs[i]
		err := a.ArchiveProduct(ctx, id)
		a.advanceProgress()

		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case domain.IsSummaryFetch(err):
			skipped++
			return nil
		}

		failures = multierror.Append(failures, err)
		if a.config.FailFast {
			return err
		}
		return nil
	})

	if err != nil && ctx.Err() != nil {
		failures = multierror.Append(failures, ctx.Err())
	}
	runErr := failures.ErrorOrNil()

	a.finishRun(runErr)

	fields := []zap.Field{
		zap.String("run_id", a.currentRunID()),
		zap.Int("summary_failures", skipped),
		zap.Int("cookies_merged", a.jar.Merged()),
		zap.Duration("duration", time.Since(start)),
	}
	if runErr != nil {
		a.logger.Error("archive run finished with errors", append(fields, zap.Error(runErr))...)
		return runErr
	}
	a.logger.Info("archive run finished", fields...)
	return nil
}

// sequential runs fn for indexes 0..n-1 with exactly one call in flight.
// The first error stops the iteration and cancels the context passed to fn.
func sequential(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A previous call may have failed while this one waited for its slot
			if gctx.Err() != nil {
				return nil
			}
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *Archiver) checkDiskSpace() error {
	if a.config.MinFreeBytes == 0 {
		return nil
	}
	reporter, ok := a.archive.(port.DiskReporter)
	if !ok {
		return nil
	}

	usage, err := reporter.DiskUsage()
	if err != nil {
		a.logger.Warn("failed to read disk usage", zap.Error(err))
		return nil
	}
	if usage.Free < a.config.MinFreeBytes {
		return fmt.Errorf("output volume has %d bytes free, need at least %d", usage.Free, a.config.MinFreeBytes)
	}
	a.logger.Debug("output volume",
		zap.Uint64("free_bytes", usage.Free),
		zap.Uint64("total_bytes", usage.Total))
	return nil
}

func (a *Archiver) advanceProgress() {
	if a.progress == nil {
		return
	}
	if err := a.progress.Add(1); err != nil {
		a.logger.Debug("failed to update progress", zap.Error(err))
	}
}

func (a *Archiver) currentRunID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runID
}

func (a *Archiver) startRun(products int) {
	if a.ledger == nil {
		return
	}
	run := &domain.Run{OutputDir: a.archive.RootDir(), ProductIDs: products}
	if err := a.ledger.StartRun(run); err != nil {
		a.logger.Warn("failed to record run start", zap.Error(err))
		return
	}
	a.mu.Lock()
	a.runID = run.ID
	a.mu.Unlock()
}

func (a *Archiver) finishRun(runErr error) {
	runID := a.currentRunID()
	if a.ledger == nil || runID == "" {
		return
	}
	status := domain.RunStatusFinished
	if runErr != nil {
		status = domain.RunStatusFailed
	}
	if err := a.ledger.FinishRun(runID, status, runErr); err != nil {
		a.logger.Warn("failed to record run finish", zap.String("run_id", runID), zap.Error(err))
	}
}

func (a *Archiver) recordProduct(rec *domain.ProductRecord) {
	if a.ledger == nil || rec.RunID == "" {
		return
	}
	if err := a.ledger.RecordProduct(rec); err != nil {
		a.logger.Warn("failed to record product",
			zap.String("product_id", rec.ProductID),
			zap.Error(err))
	}
}
