// Package batch drives censoring across a directory: every *.pdf in
// the input directory is processed independently into the output
// directory under the same name. One bad file never aborts the rest;
// the only fatal condition is an unusable input directory.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/YanSamuray/cpf-censoring/censor"
	"github.com/YanSamuray/cpf-censoring/observability"
)

// Config controls one batch run.
type Config struct {
	InputDir  string
	OutputDir string
	Workers   int // concurrent files, clamped to [1, len(inputs)]
	Options   censor.Options
}

// FileError records one failed input.
type FileError struct {
	Name string
	Err  error
}

func (e FileError) Error() string { return e.Name + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

// Summary tallies a batch run. Failures holds one entry per failed
// file, in input order.
type Summary struct {
	Processed int
	Failed    int
	Matches   int
	Redacted  int
	Failures  []FileError
}

// Run censors every PDF under cfg.InputDir into cfg.OutputDir. Files
// are distributed over a bounded worker pool; each worker owns one
// input/output pair at a time. A cancelled context stops the pool and
// returns the summary of what completed alongside the context error.
func Run(ctx context.Context, cfg Config, logger observability.Logger) (Summary, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}

	info, err := os.Stat(cfg.InputDir)
	if err != nil {
		return Summary{}, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return Summary{}, fmt.Errorf("input %s is not a directory", cfg.InputDir)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create output directory: %w", err)
	}

	names, err := listPDFs(cfg.InputDir)
	if err != nil {
		return Summary{}, err
	}
	if len(names) == 0 {
		logger.Info("no pdf files found", observability.String("dir", cfg.InputDir))
		return Summary{}, nil
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(names) {
		workers = len(names)
	}

	opts := cfg.Options
	if opts.Logger == nil {
		opts.Logger = logger
	}
	proc := censor.NewProcessor(nil, opts)

	type result struct {
		stats censor.Stats
		err   error
		done  bool
	}
	results := make([]result, len(names))
	jobs := make(chan int, len(names))

	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for idx := range jobs {
			select {
			case <-ctx.Done():
				return
			default:
			}
			name := names[idx]
			log := logger.With(observability.String("file", name))
			stats, err := proc.ProcessFile(ctx,
				filepath.Join(cfg.InputDir, name),
				filepath.Join(cfg.OutputDir, name))
			results[idx] = result{stats: stats, err: err, done: true}
			if err != nil {
				log.Error("file failed", observability.Error("error", err))
				continue
			}
			log.Info("file done",
				observability.Int("pages", stats.Pages),
				observability.Int("matches", stats.Matches),
				observability.Int("redacted", stats.Redacted),
				observability.Int("skipped", stats.SkippedMatches))
		}
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}
	for i := range names {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var summary Summary
	for i, r := range results {
		if !r.done {
			continue
		}
		if r.err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, FileError{Name: names[i], Err: r.err})
			continue
		}
		summary.Processed++
		summary.Matches += r.stats.Matches
		summary.Redacted += r.stats.Redacted
	}
	logger.Info("batch finished",
		observability.Int("processed", summary.Processed),
		observability.Int("failed", summary.Failed),
		observability.Int("matches", summary.Matches),
		observability.Int("redacted", summary.Redacted))
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// listPDFs returns the *.pdf entry names of dir, extension matched
// case-insensitively, sorted by name.
func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
