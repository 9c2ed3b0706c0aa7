package fonts

import (
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// glyphProgram wraps an embedded TrueType or OpenType program for
// advance lookups. Querying at ppem == unitsPerEm keeps the funit
// values exact; scaling to 1000-unit glyph space happens afterwards.
type glyphProgram struct {
	font       *sfnt.Font
	buf        sfnt.Buffer
	unitsPerEm sfnt.Units
	ppem       fixed.Int26_6
}

func parseGlyphProgram(data []byte) (*glyphProgram, error) {
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, err
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		unitsPerEm = 1000
	}
	return &glyphProgram{
		font:       font,
		unitsPerEm: unitsPerEm,
		ppem:       fixed.Int26_6(unitsPerEm << 6),
	}, nil
}

func (g *glyphProgram) advanceByGID(gid uint32) (float64, bool) {
	if gid == 0 {
		return 0, false
	}
	adv, err := g.font.GlyphAdvance(&g.buf, sfnt.GlyphIndex(gid), g.ppem, xfont.HintingNone)
	if err != nil {
		return 0, false
	}
	return g.scaleFixed(adv), true
}

func (g *glyphProgram) advanceByRune(r rune) (float64, bool) {
	idx, err := g.font.GlyphIndex(&g.buf, r)
	if err != nil || idx == 0 {
		return 0, false
	}
	adv, err := g.font.GlyphAdvance(&g.buf, idx, g.ppem, xfont.HintingNone)
	if err != nil {
		return 0, false
	}
	return g.scaleFixed(adv), true
}

// scaleFixed converts a 26.6 fixed value measured at ppem = unitsPerEm
// into 1000-unit glyph space.
func (g *glyphProgram) scaleFixed(val fixed.Int26_6) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(g.unitsPerEm))
}
