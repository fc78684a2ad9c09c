package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/eak1mov/pmtiles-inspect/inspect"
	"github.com/eak1mov/pmtiles-inspect/pm"
	"github.com/google/subcommands"
)

type verifyCmd struct {
	progress bool
	verbose  bool
}

func (c *verifyCmd) Name() string     { return "verify" }
func (c *verifyCmd) Synopsis() string { return "check archive directories against the header" }
func (c *verifyCmd) Usage() string {
	return "pmtiles-inspect verify [-progress] <file>\n"
}
func (c *verifyCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.progress, "progress", false, "Show progress on stderr")
	f.BoolVar(&c.verbose, "v", false, "Verbose logging")
}

func (c *verifyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Print(c.Usage())
		return subcommands.ExitUsageError
	}

	reader, err := pm.NewFileReader(f.Arg(0), pm.WithReaderLogger(newLogger(c.verbose)))
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer reader.Close()

	var progress func()
	if c.progress {
		header := reader.Header()
		bar := newProgressBar("verify", int64(header.AddressedTilesCount))
		defer bar.Finish()
		progress = func() { bar.Add(1) }
	}

	v, err := inspect.Verify(ctx, reader, progress)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("%s addressed tiles, %s entries, %s contents, zoom %d-%d\n",
		humanize.Comma(int64(v.AddressedTiles)), humanize.Comma(int64(v.TileEntries)),
		humanize.Comma(int64(v.TileContents)), v.MinZoom, v.MaxZoom)
	for _, problem := range v.Problems {
		fmt.Println("invalid:", problem)
	}
	if !v.Valid() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
