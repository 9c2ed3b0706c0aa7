// Package censor runs the per-document pipeline: parse the file, build
// the page view, then per page extract the text layer, locate CPF
// numbers, plan cover boxes and apply them, and finally rewrite the
// whole document. A document that cannot be read is skipped with
// ErrUnreadable; a match that cannot be resolved to geometry is skipped
// and counted, never fatal.
package censor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/YanSamuray/cpf-censoring/extractor"
	"github.com/YanSamuray/cpf-censoring/filters"
	"github.com/YanSamuray/cpf-censoring/ir"
	"github.com/YanSamuray/cpf-censoring/locator"
	"github.com/YanSamuray/cpf-censoring/observability"
	"github.com/YanSamuray/cpf-censoring/parser"
	"github.com/YanSamuray/cpf-censoring/recovery"
	"github.com/YanSamuray/cpf-censoring/redactor"
	"github.com/YanSamuray/cpf-censoring/writer"
)

// Options configures one Processor.
type Options struct {
	Color       redactor.Color
	Margin      float64 // points added around each cover box
	Placeholder bool    // draw white asterisks over the covered digits
	Recovery    recovery.Strategy
	Limits      filters.Limits
	Logger      observability.Logger
}

// Stats reports what one document yielded.
type Stats struct {
	Pages          int
	Matches        int
	Redacted       int
	SkippedMatches int
}

// Processor censors CPF numbers in one document at a time. It is
// stateless between documents, so one instance may serve many files.
type Processor struct {
	locator locator.Locator
	opts    Options
	logger  observability.Logger
}

// NewProcessor builds a processor. A nil loc uses the standard CPF
// locator; a nil recovery strategy parses leniently, so damaged but
// usable documents are processed rather than skipped.
func NewProcessor(loc locator.Locator, opts Options) *Processor {
	if loc == nil {
		loc = locator.NewCPFLocator()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	if opts.Recovery == nil {
		opts.Recovery = recovery.NewLenientStrategy()
	}
	return &Processor{locator: loc, opts: opts, logger: opts.Logger}
}

// ProcessFile censors inPath into outPath. The output appears only on
// success: bytes go to a temp file in the output directory, synced and
// renamed over outPath; the temp file is removed on any failure.
func (p *Processor) ProcessFile(ctx context.Context, inPath, outPath string) (Stats, error) {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", parser.ErrUnreadable, err)
	}
	var buf bytes.Buffer
	stats, err := p.run(ctx, data, &buf)
	if err != nil {
		return stats, err
	}
	if err := writeAtomic(outPath, buf.Bytes()); err != nil {
		return stats, fmt.Errorf("write %s: %w", filepath.Base(outPath), err)
	}
	return stats, nil
}

// Process censors the document in r and writes the result to out. The
// result reaches out only after the whole document succeeded.
func (p *Processor) Process(ctx context.Context, r io.ReaderAt, size int64, out io.Writer) (Stats, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(r, 0, size), data); err != nil {
		return Stats{}, fmt.Errorf("%w: read input: %v", parser.ErrUnreadable, err)
	}
	var buf bytes.Buffer
	stats, err := p.run(ctx, data, &buf)
	if err != nil {
		return stats, err
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		return stats, fmt.Errorf("write output: %w", err)
	}
	return stats, nil
}

func (p *Processor) run(ctx context.Context, data []byte, out io.Writer) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	pipe := ir.NewPipeline(ir.Config{
		Recovery: p.opts.Recovery,
		Limits:   p.opts.Limits,
		Logger:   p.logger,
	})
	doc, err := pipe.Load(ctx, data)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Pages: len(doc.Pages)}
	ext := extractor.NewTextExtractor(extractor.Config{Logger: p.logger})
	red := redactor.New(doc.Raw, redactor.Options{
		Color:       p.opts.Color,
		Margin:      p.opts.Margin,
		Placeholder: p.opts.Placeholder,
		Logger:      p.logger,
	})
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		text := ext.Extract(page)
		matches := p.locator.FindCPFs(text.Text)
		if len(matches) == 0 {
			continue
		}
		stats.Matches += len(matches)
		targets := red.Plan(text, matches)
		stats.Redacted += len(targets)
		stats.SkippedMatches += len(matches) - len(targets)
		red.Apply(page, targets)
		p.logger.Debug("page redacted",
			observability.Int("page", page.Index+1),
			observability.Int("matches", len(matches)),
			observability.Int("redacted", len(targets)))
	}

	w := writer.NewDocumentWriter(writer.Config{Logger: p.logger})
	if err := w.Write(ctx, out, doc); err != nil {
		return stats, fmt.Errorf("write document: %w", err)
	}
	p.logger.Debug("document processed",
		observability.Int("pages", stats.Pages),
		observability.Int("matches", stats.Matches),
		observability.Int("redacted", stats.Redacted),
		observability.Int("skipped", stats.SkippedMatches))
	return stats, nil
}

// writeAtomic lands data at path with no partially written file ever
// visible under that name. The temp file lives in the same directory so
// the final rename stays on one filesystem.
func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(name)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
