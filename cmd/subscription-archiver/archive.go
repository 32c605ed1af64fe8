package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vertextoedge/subscription-archiver/internal/adapter/chrome"
	"github.com/vertextoedge/subscription-archiver/internal/adapter/filesystem"
	"github.com/vertextoedge/subscription-archiver/internal/adapter/sqlite"
	"github.com/vertextoedge/subscription-archiver/internal/adapter/subscription"
	"github.com/vertextoedge/subscription-archiver/internal/config"
	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/logger"
	"github.com/vertextoedge/subscription-archiver/internal/port"
	"github.com/vertextoedge/subscription-archiver/internal/service/archiver"
	"github.com/vertextoedge/subscription-archiver/internal/service/document"
	"github.com/vertextoedge/subscription-archiver/internal/service/maintenance"
)

// setup loads the configuration and initializes the global logger
func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"), configOverrides(c))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.GetZapLogger(), nil
}

func archiveAction(c *cli.Context) error {
	cfg, zapLogger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	zapLogger.Info("starting subscription-archiver",
		zap.String("version", version),
		zap.String("output_dir", cfg.Output.Dir),
	)

	ids, err := loadProductIDs(cfg.Output.IDsFile)
	if err != nil {
		return err
	}
	template, err := readTemplate(cfg.Output.TemplateFile)
	if err != nil {
		return err
	}

	archive, err := filesystem.NewManager(cfg.Output.Dir)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var (
		ledger port.Ledger
		runs   port.RunSweeper
	)
	if cfg.Ledger.Enabled {
		store, err := sqlite.Open(cfg.GetLedgerPath())
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer store.Close()
		ledger = store
		runs = store
	}

	if err := maintenance.New(nil, archive, runs, zapLogger).Sweep(c.Context); err != nil {
		return err
	}

	jar, err := subscription.NewCookieJar()
	if err != nil {
		return err
	}

	policy := subscription.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.GetInitialInterval(),
		Multiplier:      cfg.Retry.Multiplier,
		MaxInterval:     cfg.Retry.GetMaxInterval(),
	}
	httpClient := subscription.NewHTTPClient()

	client := subscription.NewClient(&subscription.ClientConfig{
		AuthURL:         cfg.API.AuthURL,
		BaseURL:         cfg.API.BaseURL,
		Policy:          policy,
		RequestInterval: cfg.API.GetRequestInterval(),
		HTTPClient:      httpClient,
	}, jar, zapLogger)
	fetcher := subscription.NewFetcher(httpClient, policy, jar, zapLogger)

	renderer := chrome.NewRenderer(chrome.Config{
		ExecPath: cfg.Render.ChromePath,
		Timeout:  cfg.Render.GetTimeout(),
	}, zapLogger)

	archiverCfg := archiver.DefaultConfig()
	archiverCfg.FailFast = cfg.Run.FailFast
	archiverCfg.MinFreeBytes = cfg.Output.GetMinFreeBytes()
	archiverCfg.Render = renderOptions(cfg)

	deps := archiver.Deps{
		Auth:      client,
		Catalog:   client,
		Jar:       jar,
		Fetcher:   fetcher,
		Archive:   archive,
		Assembler: document.NewAssembler(template, cfg.Document.ImageBaseURL),
		Renderer:  renderer,
		Ledger:    ledger,
	}
	if cfg.Run.Progress {
		deps.Progress = newProgressBar(len(ids))
	}

	a := archiver.New(archiverCfg, deps, zapLogger)

	creds := domain.Credentials{Username: cfg.Auth.Username, Password: cfg.Auth.Password}
	if err := a.Login(c.Context, creds); err != nil {
		return err
	}

	return a.Run(c.Context, ids)
}

func renderOptions(cfg *config.Config) port.RenderOptions {
	return port.RenderOptions{
		PrintBackground: cfg.Render.PrintBackground,
		Margin: port.Margin{
			Top:    cfg.Render.MarginTop,
			Bottom: cfg.Render.MarginBottom,
			Left:   cfg.Render.MarginLeft,
			Right:  cfg.Render.MarginRight,
		},
	}
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("products"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}
