// Package redactor turns CPF matches into cover boxes and applies
// them to the page: an opaque fill painted above the content plus a
// text scrub that excises the covered digits from their show
// operands, so the output neither displays them nor yields them to
// extraction.
package redactor

import (
	"errors"
	"fmt"

	"github.com/YanSamuray/cpf-censoring/extractor"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
	"github.com/YanSamuray/cpf-censoring/locator"
	"github.com/YanSamuray/cpf-censoring/observability"
)

// ErrNoGeometry marks a match whose covered digits could not be
// resolved to cover boxes. Plan logs and skips such matches.
var ErrNoGeometry = errors.New("no usable geometry")

// The covered digits are the first three and last two; digits 3..8
// and the separators stay visible.
const (
	leftRunEnd    = 2
	rightRunStart = 9
)

// Color is an RGB fill with components in 0..1. The zero value is
// black.
type Color struct {
	R, G, B float64
}

// Options controls box placement and the overlay appearance.
type Options struct {
	Color       Color
	Margin      float64 // points added around each cover box
	Placeholder bool    // draw white asterisks over each box
	Logger      observability.Logger
}

// Target is one match resolved to geometry. Boxes[0] covers digits
// 0-2 and Boxes[1] digits 9-10, margins applied.
type Target struct {
	Match locator.CPFMatch
	Boxes []extractor.GlyphRect

	scrubs []extractor.ShowRef
}

// Redactor plans and applies partial CPF redaction on one document.
type Redactor struct {
	doc  *raw.Document
	opts Options
}

func New(doc *raw.Document, opts Options) *Redactor {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	return &Redactor{doc: doc, opts: opts}
}

// Plan resolves matches to targets. A match whose covered digits do
// not all resolve to geometry is skipped whole, so a CPF is never
// left half masked. The match text is never logged.
func (r *Redactor) Plan(text *extractor.PageText, matches []locator.CPFMatch) []Target {
	var out []Target
	for _, m := range matches {
		t, err := r.target(text, m)
		if err != nil {
			r.opts.Logger.Warn("skipping match without usable geometry",
				observability.Int("offset", m.StartOffset),
				observability.Error("reason", err))
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *Redactor) target(text *extractor.PageText, m locator.CPFMatch) (Target, error) {
	rects := make(map[int]extractor.GlyphRect, len(m.DigitPositions))
	scrubs := make([]extractor.ShowRef, 0, 5)
	for _, dp := range m.DigitPositions {
		covered := dp.DigitIndex <= leftRunEnd || dp.DigitIndex >= rightRunStart
		rect, src, err := glyphRect(text, dp.CharOffset)
		if covered {
			if err != nil {
				return Target{}, fmt.Errorf("digit %d: %w", dp.DigitIndex, err)
			}
			rects[dp.DigitIndex] = rect
			scrubs = append(scrubs, *src)
		} else if err == nil {
			rects[dp.DigitIndex] = rect
		}
	}

	left := merged(rects, 0, leftRunEnd)
	right := merged(rects, rightRunStart, 10)
	// A cover box must not swallow the preserved middle: trim it at
	// the nearest preserved digit edge it crosses.
	for d := leftRunEnd + 1; d < rightRunStart; d++ {
		p, ok := rects[d]
		if !ok {
			continue
		}
		if left.Intersects(p) && p.X0 > left.X0 {
			left.X1 = p.X0
		}
		if right.Intersects(p) && p.X1 < right.X1 {
			right.X0 = p.X1
		}
	}
	if left.Degenerate() || right.Degenerate() {
		return Target{}, fmt.Errorf("%w: cover box collapsed onto preserved digits", ErrNoGeometry)
	}

	return Target{
		Match:  m,
		Boxes:  []extractor.GlyphRect{left.Expand(r.opts.Margin), right.Expand(r.opts.Margin)},
		scrubs: scrubs,
	}, nil
}

// glyphRect resolves a character offset to a box, interpolating
// across the containing word when the glyph itself carries no
// geometry. Word geometry is character-uniform, the same
// approximation a width-less viewer makes.
func glyphRect(text *extractor.PageText, offset int) (extractor.GlyphRect, *extractor.ShowRef, error) {
	gi := text.GlyphIndexAt(offset)
	if gi < 0 {
		return extractor.GlyphRect{}, nil, fmt.Errorf("%w: offset %d maps to no glyph", ErrNoGeometry, offset)
	}
	g := text.Glyphs[gi]
	if g.Source == nil {
		return extractor.GlyphRect{}, nil, fmt.Errorf("%w: offset %d is a synthetic separator", ErrNoGeometry, offset)
	}
	if !g.Rect.Degenerate() {
		return g.Rect, g.Source, nil
	}
	if g.Word >= 0 {
		wb := text.Words[g.Word]
		if !wb.Rect.Degenerate() {
			n := wb.End - wb.Start
			k := gi - wb.Start
			cw := (wb.Rect.X1 - wb.Rect.X0) / float64(n)
			return extractor.GlyphRect{
				X0: wb.Rect.X0 + float64(k)*cw,
				Y0: wb.Rect.Y0,
				X1: wb.Rect.X0 + float64(k+1)*cw,
				Y1: wb.Rect.Y1,
			}, g.Source, nil
		}
	}
	return extractor.GlyphRect{}, nil, fmt.Errorf("%w: offset %d", ErrNoGeometry, offset)
}

func merged(rects map[int]extractor.GlyphRect, lo, hi int) extractor.GlyphRect {
	var out extractor.GlyphRect
	for d := lo; d <= hi; d++ {
		out = out.Union(rects[d])
	}
	return out
}
