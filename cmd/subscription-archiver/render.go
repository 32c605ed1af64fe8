package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vertextoedge/subscription-archiver/internal/adapter/chrome"
	"github.com/vertextoedge/subscription-archiver/internal/logger"
	"github.com/vertextoedge/subscription-archiver/internal/service/document"
)

// renderAction converts DIR/book.html into DIR/book.pdf.
// DIR defaults to the working directory.
func renderAction(c *cli.Context) error {
	cfg, zapLogger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dir := c.Args().First()
	if dir == "" {
		dir = "."
	}

	html, err := os.ReadFile(filepath.Join(dir, document.HTMLFile))
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	renderer := chrome.NewRenderer(chrome.Config{
		ExecPath: cfg.Render.ChromePath,
		Timeout:  cfg.Render.GetTimeout(),
	}, zapLogger)

	pdfPath := filepath.Join(dir, document.PDFFile)
	if err := renderer.Render(c.Context, string(html), pdfPath, renderOptions(cfg)); err != nil {
		return err
	}

	zapLogger.Info("rendered", zap.String("path", pdfPath))
	return nil
}
