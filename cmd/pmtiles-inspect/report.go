package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"

	"github.com/eak1mov/pmtiles-inspect/geo"
	"github.com/eak1mov/pmtiles-inspect/inspect"
	"github.com/eak1mov/pmtiles-inspect/report"
	"github.com/google/subcommands"
)

type reportCmd struct {
	zoomAnalysis bool
	bbox         string
	concurrency  int
	format       string
	progress     bool
	verbose      bool
}

func (c *reportCmd) Name() string     { return "report" }
func (c *reportCmd) Synopsis() string { return "print a diagnostic report of a PMTiles archive" }
func (c *reportCmd) Usage() string {
	return "pmtiles-inspect report [-z [-bbox <minLon,minLat,maxLon,maxLat>] [-concurrency <n>] [-progress]] [-format markdown|json] <file>\n"
}
func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.zoomAnalysis, "z", false, "Analyze tile distribution per zoom level (one lookup per tile slot, slow on large areas)")
	f.StringVar(&c.bbox, "bbox", "", "Zoom analysis bounds, defaults to the header bounds")
	f.IntVar(&c.concurrency, "concurrency", 1, "Parallel tile lookups during zoom analysis")
	f.StringVar(&c.format, "format", "markdown", "Output format (markdown, json)")
	f.BoolVar(&c.progress, "progress", false, "Show zoom analysis progress on stderr")
	f.BoolVar(&c.verbose, "v", false, "Verbose logging")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Print(c.Usage())
		return subcommands.ExitUsageError
	}
	filePath := f.Arg(0)

	var render func(io.Writer, *inspect.Report) error
	switch c.format {
	case "markdown", "md":
		render = report.Markdown
	case "json":
		render = report.JSON
	default:
		log.Printf("invalid output format: %q", c.format)
		return subcommands.ExitUsageError
	}

	opts := []inspect.Option{inspect.WithLogger(newLogger(c.verbose))}
	if c.bbox != "" {
		bounds, err := geo.ParseBounds(c.bbox)
		if err == nil {
			err = geo.ValidateBounds(bounds)
		}
		if err != nil {
			log.Println(err)
			return subcommands.ExitUsageError
		}
		opts = append(opts, inspect.WithBounds(bounds))
	}
	if c.zoomAnalysis {
		analyzerOpts := []inspect.AnalyzerOption{inspect.WithConcurrency(c.concurrency)}
		if c.progress {
			bar := newProgressBar("zoom analysis", -1)
			defer bar.Finish()
			analyzerOpts = append(analyzerOpts,
				inspect.WithPlanned(func(lookups uint64) { bar.ChangeMax64(int64(lookups)) }),
				inspect.WithProgress(func() { bar.Add(1) }))
		}
		opts = append(opts, inspect.WithZoomAnalysis(analyzerOpts...))
	}

	r, err := inspect.Inspect(ctx, filePath, opts...)
	if errors.Is(err, inspect.ErrMissingInput) {
		log.Printf("file not found: %s", filePath)
		return subcommands.ExitFailure
	}
	if r == nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	// a cancelled zoom analysis still renders the rows completed so far
	if renderErr := render(os.Stdout, r); renderErr != nil {
		log.Println(renderErr)
		return subcommands.ExitFailure
	}
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
