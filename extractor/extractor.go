// Package extractor interprets page operations and yields the text
// layer with per-glyph geometry: each rune of the page text carries the
// page-space box it renders into and a reference back to the operand
// bytes that drew it.
package extractor

import (
	"sort"

	"github.com/YanSamuray/cpf-censoring/observability"
)

// GlyphRect is an axis-aligned box in page space, normalized so
// X0 <= X1 and Y0 <= Y1.
type GlyphRect struct {
	X0, Y0, X1, Y1 float64
}

// Degenerate reports whether the box has no area, the marker for
// geometry that could not be computed.
func (r GlyphRect) Degenerate() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// Union returns the smallest box covering both.
func (r GlyphRect) Union(o GlyphRect) GlyphRect {
	if r.Degenerate() {
		return o
	}
	if o.Degenerate() {
		return r
	}
	out := r
	if o.X0 < out.X0 {
		out.X0 = o.X0
	}
	if o.Y0 < out.Y0 {
		out.Y0 = o.Y0
	}
	if o.X1 > out.X1 {
		out.X1 = o.X1
	}
	if o.Y1 > out.Y1 {
		out.Y1 = o.Y1
	}
	return out
}

// Expand grows the box by m on every side.
func (r GlyphRect) Expand(m float64) GlyphRect {
	return GlyphRect{X0: r.X0 - m, Y0: r.Y0 - m, X1: r.X1 + m, Y1: r.Y1 + m}
}

// Intersects reports whether the boxes overlap with positive area.
func (r GlyphRect) Intersects(o GlyphRect) bool {
	return r.X0 < o.X1 && o.X0 < r.X1 && r.Y0 < o.Y1 && o.Y0 < r.Y1
}

// ShowRef pins a glyph to the bytes that drew it: the content stream
// index on the page, the operation index in that stream, and the byte
// range inside the string operand. Operand indexes the element within
// a TJ array; for Tj, ' and " it indexes the operation's operand list.
// AdvUnits is the advance the glyph contributes in TJ array units, the
// adjustment that keeps later glyphs in place if its bytes are excised.
type ShowRef struct {
	Stream    int
	Op        int
	Operand   int
	ByteStart int
	ByteEnd   int
	AdvUnits  float64
}

// Glyph is one rune of the page text. Synthetic separators (inserted
// newlines and spaces) carry no source and no geometry.
type Glyph struct {
	Rune      rune
	Rect      GlyphRect
	Word      int // index into Words, -1 for separators
	Source    *ShowRef
	Synthetic bool
}

// WordBox is a maximal run of consecutive non-separator glyphs with
// the union of their boxes, the granularity of the interpolation
// fallback when a single glyph has no geometry.
type WordBox struct {
	Start, End int // glyph index range, End exclusive
	Rect       GlyphRect
}

// PageText is the extracted text layer of one page. Glyphs aligns with
// the runes of Text in order.
type PageText struct {
	Text   string
	Glyphs []Glyph
	Words  []WordBox
	Failed int // glyphs whose geometry could not be computed

	offsets []int // byte offset in Text of each glyph's rune
}

// GlyphIndexAt maps a byte offset of Text to the index of the glyph
// whose rune starts there, or -1.
func (p *PageText) GlyphIndexAt(offset int) int {
	i := sort.SearchInts(p.offsets, offset)
	if i < len(p.offsets) && p.offsets[i] == offset {
		return i
	}
	return -1
}

// Config controls text extraction.
type Config struct {
	Logger observability.Logger
}

// TextExtractor runs the text state machine over pages.
type TextExtractor struct {
	cfg Config
}

func NewTextExtractor(cfg Config) *TextExtractor {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &TextExtractor{cfg: cfg}
}
