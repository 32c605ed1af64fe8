package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vertextoedge/subscription-archiver/internal/adapter/sqlite"
	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/logger"
)

func historyAction(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := sqlite.Open(cfg.GetLedgerPath())
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	out := c.App.Writer
	if runID := c.String("run"); runID != "" {
		products, err := store.ListProducts(runID)
		if err != nil {
			return err
		}
		return printProducts(out, products)
	}

	runs, err := store.ListRuns(c.Int("limit"))
	if err != nil {
		return err
	}
	return printRuns(out, runs)
}

func printRuns(out io.Writer, runs []*domain.Run) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tPRODUCTS\tSTATUS\tERROR")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			r.ProductIDs,
			r.Status,
			r.LastError,
		)
	}
	return w.Flush()
}

func printProducts(out io.Writer, products []*domain.ProductRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tTITLE\tSTATUS\tSECTIONS\tASSETS\tDOCUMENT\tERROR")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
			p.ProductID,
			p.Title,
			p.Status,
			p.Sections,
			p.Assets,
			p.Document,
			p.LastError,
		)
	}
	return w.Flush()
}
