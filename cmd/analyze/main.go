// Command analyze runs the contract analysis pipeline on local files.
//
//	analyze contract -format markdown agreement.txt
//	analyze contract -format json -reference rates.yaml a.txt b.html
//	analyze check-reference -reference rates.yaml -market-xml banxico.xml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/liamcoop/loanlens/internal/logger"
	"github.com/liamcoop/loanlens/refdata"
)

func referenceSource(c *cli.Context) refdata.FileSource {
	return refdata.FileSource{
		Paths:     c.StringSlice("reference"),
		MarketXML: c.String("market-xml"),
	}
}

func output(c *cli.Context) (io.Writer, func() error, error) {
	path := c.String("out")
	if path == "" || path == "-" {
		return c.App.Writer, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "analyze",
		Usage: "analyze loan contracts against reference market data",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "reference",
				Aliases: []string{"r"},
				Usage:   "reference data YAML merged over the shipped defaults, in order",
				EnvVars: []string{"LOANLENS_REFERENCE_PATHS"},
			},
			&cli.StringFlag{
				Name:    "market-xml",
				Usage:   "XML rate publication applied over the reference data",
				EnvVars: []string{"LOANLENS_REFERENCE_MARKET_XML"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "trace, debug, info, warning, error or fatal",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			return logger.Configure(c.String("log-level"), 0)
		},
		Commands: []*cli.Command{
			{
				Name:      "contract",
				Usage:     "analyze contract files (- reads standard input)",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: formatMarkdown, Usage: "json, markdown or csv (amortization schedule)"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write to this file instead of standard output"},
					&cli.BoolFlag{Name: "html", Usage: "parse every input as HTML"},
					&cli.IntFlag{Name: "concurrency", Value: 4, Usage: "contracts analyzed at once"},
					&cli.BoolFlag{Name: "fail-on-reject", Usage: "exit with status 3 when a contract is rejected"},
				},
				Action: func(c *cli.Context) error {
					w, closeOut, err := output(c)
					if err != nil {
						return err
					}
					err = run(c.Context, options{
						Files:        c.Args().Slice(),
						Format:       c.String("format"),
						HTML:         c.Bool("html"),
						Concurrency:  c.Int("concurrency"),
						FailOnReject: c.Bool("fail-on-reject"),
						Reference:    referenceSource(c),
					}, os.Stdin, w)
					if cerr := closeOut(); err == nil {
						err = cerr
					}
					if errors.Is(err, errRejected) {
						return cli.Exit(err.Error(), 3)
					}
					return err
				},
			},
			{
				Name:  "check-reference",
				Usage: "validate reference data files without analyzing anything",
				Action: func(c *cli.Context) error {
					return checkReference(referenceSource(c), c.App.Writer)
				},
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			logger.Error("analysis finished with a rejection", "error", err)
			_ = logger.Shutdown(context.Background())
			os.Exit(exit.ExitCode())
		}
		logger.Fatal("analyze failed", "error", err)
	}
	_ = logger.Shutdown(context.Background())
}
