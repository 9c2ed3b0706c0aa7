// Command censor scans a directory of PDF files for CPF numbers and
// writes partially redacted copies: the first three and last two digits
// of each CPF are painted over and removed from the text layer, the
// middle six stay readable.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/YanSamuray/cpf-censoring/batch"
	"github.com/YanSamuray/cpf-censoring/censor"
	"github.com/YanSamuray/cpf-censoring/observability"
	"github.com/YanSamuray/cpf-censoring/redactor"
)

type options struct {
	inDir       string
	outDir      string
	color       redactor.Color
	margin      float64
	placeholder bool
	workers     int
	verbose     bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "censor: %v\n", err)
		os.Exit(1)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "censor: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: censor [flags]\nRedacts CPF numbers in every PDF of the input directory.\n")
		flag.PrintDefaults()
	}
	inDir := flag.String("in", "data/input", "Directory of PDF files to censor")
	outDir := flag.String("out", "data/output", "Directory for censored copies")
	color := flag.String("color", "000000", "Cover box fill as RRGGBB hex")
	margin := flag.Float64("margin", 1, "Points added around each cover box")
	placeholder := flag.Bool("placeholder", false, "Draw white asterisks over the covered digits")
	workers := flag.Int("workers", 1, "Files processed concurrently")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if flag.NArg() != 0 {
		flag.Usage()
		return options{}, fmt.Errorf("unexpected argument %q", flag.Arg(0))
	}
	c, err := parseColor(*color)
	if err != nil {
		return options{}, err
	}
	if *workers < 1 {
		return options{}, fmt.Errorf("workers must be at least 1")
	}
	opts.inDir = *inDir
	opts.outDir = *outDir
	opts.color = c
	opts.margin = *margin
	opts.placeholder = *placeholder
	opts.workers = *workers
	opts.verbose = *verbose
	return opts, nil
}

// parseColor reads an RRGGBB hex triple into components in 0..1.
func parseColor(s string) (redactor.Color, error) {
	if len(s) != 6 {
		return redactor.Color{}, fmt.Errorf("color %q: want RRGGBB hex", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return redactor.Color{}, fmt.Errorf("color %q: want RRGGBB hex", s)
	}
	return redactor.Color{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}, nil
}

func run(opts options) error {
	level := observability.LevelInfo
	if opts.verbose {
		level = observability.LevelDebug
	}
	logger := observability.NewStderrLogger(level)

	summary, err := batch.Run(context.Background(), batch.Config{
		InputDir:  opts.inDir,
		OutputDir: opts.outDir,
		Workers:   opts.workers,
		Options: censor.Options{
			Color:       opts.color,
			Margin:      opts.margin,
			Placeholder: opts.placeholder,
			Logger:      logger,
		},
	}, logger)
	if err != nil {
		return err
	}

	for _, f := range summary.Failures {
		fmt.Printf("failed: %s: %v\n", f.Name, f.Err)
	}
	fmt.Printf("processed %d file(s), %d failed, %d CPF(s) found, %d redacted\n",
		summary.Processed, summary.Failed, summary.Matches, summary.Redacted)
	return nil
}
