package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "subscription-archiver",
		Usage:   "archive subscription products to a local directory tree",
		Version: version,
		Flags:   globalFlags(),
		Action:  archiveAction,
		Commands: []*cli.Command{
			{
				Name:   "archive",
				Usage:  "archive every product listed in the ids file (default)",
				Action: archiveAction,
			},
			{
				Name:  "history",
				Usage: "list recent runs, or the product outcomes of one run",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "show at most `N` runs",
					},
					&cli.StringFlag{
						Name:  "run",
						Usage: "show the products of run `ID`",
					},
				},
				Action: historyAction,
			},
			{
				Name:      "render",
				Usage:     "render an existing book.html to book.pdf",
				ArgsUsage: "[DIR]",
				Action:    renderAction,
			},
		},
		HideHelpCommand: true,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "read configuration from `FILE`",
		},
		&cli.StringFlag{
			Name:  "username",
			Usage: "subscription account `EMAIL`",
		},
		&cli.StringFlag{
			Name:  "password",
			Usage: "subscription account password",
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "save archives under `DIR`",
		},
		&cli.StringFlag{
			Name:  "ids",
			Usage: "read product ids from `FILE`",
		},
		&cli.StringFlag{
			Name:  "template",
			Usage: "read the book template from `FILE`",
		},
		&cli.BoolFlag{
			Name:  "fail-fast",
			Usage: "stop the batch at the first failed product",
		},
		&cli.BoolFlag{
			Name:  "progress",
			Usage: "show a progress bar over product ids",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log `LEVEL` (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log `FORMAT` (text, json)",
		},
	}
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"username":   "auth.username",
	"password":   "auth.password",
	"dir":        "output.dir",
	"ids":        "output.ids_file",
	"template":   "output.template_file",
	"fail-fast":  "run.fail_fast",
	"progress":   "run.progress",
	"log-level":  "logging.level",
	"log-format": "logging.format",
}

// configOverrides returns the configuration keys of every flag set on the
// command line
func configOverrides(c *cli.Context) map[string]any {
	overrides := map[string]any{}
	for flag, key := range flagKeys {
		if !c.IsSet(flag) {
			continue
		}
		switch flag {
		case "fail-fast", "progress":
			overrides[key] = c.Bool(flag)
		default:
			overrides[key] = c.String(flag)
		}
	}
	return overrides
}
