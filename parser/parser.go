// Package parser loads a PDF file into its raw object form: header check,
// cross-reference resolution, object loading and object stream expansion.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/YanSamuray/cpf-censoring/filters"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
	"github.com/YanSamuray/cpf-censoring/observability"
	"github.com/YanSamuray/cpf-censoring/recovery"
	"github.com/YanSamuray/cpf-censoring/xref"
)

// ErrUnreadable marks documents that cannot be parsed at all. Callers match
// it with errors.Is to separate broken inputs from processing failures.
var ErrUnreadable = errors.New("unreadable document")

// ErrEncrypted marks documents carrying an /Encrypt dictionary. Decryption is
// not supported, so they count as unreadable.
var ErrEncrypted = fmt.Errorf("%w: encrypted", ErrUnreadable)

// Config controls high-level parsing (xref resolution plus object loading).
type Config struct {
	Recovery recovery.Strategy
	XRef     xref.ResolverConfig
	Limits   filters.Limits
	Logger   observability.Logger
}

// DocumentParser builds a raw.Document from the bytes of a PDF file.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.XRef.Recovery == nil {
		cfg.XRef.Recovery = cfg.Recovery
	}
	if cfg.XRef.Limits == (filters.Limits{}) {
		cfg.XRef.Limits = cfg.Limits
	}
	return &DocumentParser{cfg: cfg}
}

func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	version, err := headerVersion(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	resolver := xref.NewResolver(p.cfg.XRef)
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve xref: %v", ErrUnreadable, err)
	}
	trailer := resolver.Trailer()
	if _, ok := trailer.Get(raw.NameLiteral("Encrypt")); ok {
		return nil, ErrEncrypted
	}

	doc := &raw.Document{
		Objects: make(map[raw.ObjectRef]raw.Object),
		Trailer: trailer,
		Version: version,
	}
	loader := newObjectLoader(data, table, p.cfg)
	if err := loader.loadAll(ctx, doc); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	p.cfg.Logger.Debug("document parsed",
		observability.String("version", version),
		observability.String("xref", table.Type()),
		observability.Int("objects", len(doc.Objects)))
	return doc, nil
}

// headerVersion finds the %PDF- header and returns the version after it.
// Junk before the header within the first kilobyte is tolerated, matching
// common reader behavior.
func headerVersion(data []byte) (string, error) {
	window := data
	const headerWindow = 1024
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	idx := bytes.Index(window, []byte("%PDF-"))
	if idx < 0 {
		return "", errors.New("missing %PDF header")
	}
	rest := data[idx+len("%PDF-"):]
	end := 0
	for end < len(rest) && rest[end] != '\r' && rest[end] != '\n' {
		end++
	}
	version := strings.TrimSpace(string(rest[:end]))
	if version == "" {
		return "", errors.New("empty header version")
	}
	return version, nil
}
