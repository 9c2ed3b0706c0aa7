// Package ir holds the document model in two layers: raw, the object
// graph exactly as parsed, and semantic, the page view assembled on top
// of it. Pipeline chains the file parser and the page builder so a
// caller goes from file bytes to pages in one call.
package ir

import (
	"context"
	"fmt"

	"github.com/YanSamuray/cpf-censoring/filters"
	"github.com/YanSamuray/cpf-censoring/ir/semantic"
	"github.com/YanSamuray/cpf-censoring/observability"
	"github.com/YanSamuray/cpf-censoring/parser"
	"github.com/YanSamuray/cpf-censoring/recovery"
)

// Config applies to both stages. A nil Recovery parses leniently;
// callers that want a damaged document rejected pass a strict strategy.
type Config struct {
	Recovery recovery.Strategy
	Limits   filters.Limits
	Logger   observability.Logger
}

// Pipeline turns file bytes into a semantic document.
type Pipeline struct {
	cfg Config
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy()
	}
	return &Pipeline{cfg: cfg}
}

// Load parses data and builds the page view. Any failure that marks the
// document itself as unusable carries parser.ErrUnreadable, so callers
// can tell a bad document from an environment fault.
func (p *Pipeline) Load(ctx context.Context, data []byte) (*semantic.Document, error) {
	docParser := parser.NewDocumentParser(parser.Config{
		Recovery: p.cfg.Recovery,
		Limits:   p.cfg.Limits,
		Logger:   p.cfg.Logger,
	})
	rawDoc, err := docParser.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	doc, err := semantic.Build(ctx, rawDoc, semantic.BuilderConfig{
		Recovery: p.cfg.Recovery,
		Limits:   p.cfg.Limits,
		Logger:   p.cfg.Logger,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: build pages: %v", parser.ErrUnreadable, err)
	}
	return doc, nil
}
