package extractor

import (
	"strings"
	"unicode"

	"github.com/YanSamuray/cpf-censoring/contentstream"
	"github.com/YanSamuray/cpf-censoring/coords"
	"github.com/YanSamuray/cpf-censoring/fonts"
	"github.com/YanSamuray/cpf-censoring/ir/semantic"
	"github.com/YanSamuray/cpf-censoring/observability"
)

// Vertical glyph extent in em units when the font carries no metrics.
const (
	descentEm = -0.25
	ascentEm  = 0.80
)

// Separator synthesis thresholds in em units: a forward jump beyond
// wordGapEm on the same baseline reads as a word gap, a drop beyond
// lineDropEm as a line break.
const (
	wordGapEm  = 0.30
	lineDropEm = 0.50
)

// fallbackWidth stands in when no width source resolves a glyph, so
// the rest of the line keeps a plausible pen position.
const fallbackWidth = 0.5

type gstate struct {
	ctm      coords.Matrix
	font     *fonts.Font
	fontName string
	tfs      float64 // font size
	tc       float64 // character spacing
	tw       float64 // word spacing
	th       float64 // horizontal scaling, Tz/100
	tl       float64 // leading
	ts       float64 // rise
	mode     int     // render mode; invisible text still extracts
}

type textWalker struct {
	page *semantic.Page
	log  observability.Logger

	gs    gstate
	stack []gstate
	tm    coords.Matrix
	tlm   coords.Matrix

	text    strings.Builder
	glyphs  []Glyph
	offsets []int
	failed  int

	havePen bool
	pen     coords.Point
}

// Extract runs the text state machine over the page's content streams
// in order. State carries across stream boundaries, matching how
// readers concatenate split contents.
func (e *TextExtractor) Extract(page *semantic.Page) *PageText {
	w := &textWalker{
		page: page,
		log:  e.cfg.Logger,
		gs:   gstate{ctm: coords.Identity(), th: 1},
		tm:   coords.Identity(),
		tlm:  coords.Identity(),
	}
	for si, cs := range page.Contents {
		for oi, op := range cs.Ops {
			w.step(si, oi, op)
		}
	}
	pt := &PageText{
		Text:    w.text.String(),
		Glyphs:  w.glyphs,
		Failed:  w.failed,
		offsets: w.offsets,
	}
	buildWords(pt)
	if pt.Failed > 0 {
		e.cfg.Logger.Debug("glyph geometry gaps",
			observability.Int("page", page.Index),
			observability.Int("failed", pt.Failed))
	}
	return pt
}

func (w *textWalker) step(si, oi int, op contentstream.Operation) {
	switch op.Operator {
	case "q":
		w.stack = append(w.stack, w.gs)
	case "Q":
		if n := len(w.stack); n > 0 {
			w.gs = w.stack[n-1]
			w.stack = w.stack[:n-1]
		}
	case "cm":
		if m, ok := matrixOperands(op.Operands); ok {
			w.gs.ctm = m.Multiply(w.gs.ctm)
		}
	case "BT":
		w.tm = coords.Identity()
		w.tlm = coords.Identity()
	case "ET":
	case "Tf":
		name, ok1 := nameAt(op.Operands, 0)
		size, ok2 := numAt(op.Operands, 1)
		if ok1 && ok2 {
			w.gs.fontName = name
			w.gs.tfs = size
			w.gs.font = w.page.Resources.Font(name)
			if w.gs.font == nil {
				w.log.Debug("show with unknown font resource",
					observability.String("font", name))
			}
		}
	case "Tc":
		if v, ok := numAt(op.Operands, 0); ok {
			w.gs.tc = v
		}
	case "Tw":
		if v, ok := numAt(op.Operands, 0); ok {
			w.gs.tw = v
		}
	case "Tz":
		if v, ok := numAt(op.Operands, 0); ok {
			w.gs.th = v / 100
		}
	case "TL":
		if v, ok := numAt(op.Operands, 0); ok {
			w.gs.tl = v
		}
	case "Ts":
		if v, ok := numAt(op.Operands, 0); ok {
			w.gs.ts = v
		}
	case "Tr":
		if v, ok := numAt(op.Operands, 0); ok {
			w.gs.mode = int(v)
		}
	case "Td":
		if tx, ok := numAt(op.Operands, 0); ok {
			if ty, ok := numAt(op.Operands, 1); ok {
				w.moveLine(tx, ty)
			}
		}
	case "TD":
		if tx, ok := numAt(op.Operands, 0); ok {
			if ty, ok := numAt(op.Operands, 1); ok {
				w.gs.tl = -ty
				w.moveLine(tx, ty)
			}
		}
	case "Tm":
		if m, ok := matrixOperands(op.Operands); ok {
			w.tlm = m
			w.tm = m
		}
	case "T*":
		w.moveLine(0, -w.gs.tl)
	case "Tj":
		if s, ok := strAt(op.Operands, 0); ok {
			w.show(si, oi, 0, s)
		}
	case "'":
		if s, ok := strAt(op.Operands, 0); ok {
			w.moveLine(0, -w.gs.tl)
			w.show(si, oi, 0, s)
		}
	case "\"":
		aw, ok1 := numAt(op.Operands, 0)
		ac, ok2 := numAt(op.Operands, 1)
		s, ok3 := strAt(op.Operands, 2)
		if ok1 && ok2 && ok3 {
			w.gs.tw = aw
			w.gs.tc = ac
			w.moveLine(0, -w.gs.tl)
			w.show(si, oi, 2, s)
		}
	case "TJ":
		if len(op.Operands) == 0 {
			return
		}
		arr, ok := op.Operands[0].(contentstream.ArrayOperand)
		if !ok {
			return
		}
		for j, el := range arr.Values {
			switch v := el.(type) {
			case contentstream.StringOperand:
				w.show(si, oi, j, v.Value)
			case contentstream.NumberOperand:
				w.kern(v.Value)
			}
		}
	}
}

func (w *textWalker) moveLine(tx, ty float64) {
	w.tlm = coords.Translate(tx, ty).Multiply(w.tlm)
	w.tm = w.tlm
}

// show emits the glyphs of one string operand.
func (w *textWalker) show(si, oi, operand int, raw []byte) {
	byteCursor := 0
	for _, c := range decodeBytes(w.gs.font, raw) {
		w.emit(si, oi, operand, byteCursor, c)
		byteCursor += c.ByteLen
	}
}

// kern applies a TJ number: a displacement of -n/1000 em.
func (w *textWalker) kern(n float64) {
	tx := -n / 1000 * w.gs.tfs * w.gs.th
	w.tm = coords.Translate(tx, 0).Multiply(w.tm)
}

func (w *textWalker) emit(si, oi, operand, byteStart int, c fonts.Coded) {
	w0, wok := glyphWidth(w.gs.font, c.Code)
	trm := w.trm()
	origin := trm.Transform(coords.Point{})

	emUp := trm.Transform(coords.Point{Y: 1})
	emFwd := trm.Transform(coords.Point{X: 1})
	emH := dist(origin, emUp)
	emW := dist(origin, emFwd)
	w.separators(origin, emH, emW)

	wordSp := 0.0
	if c.Code == 32 && c.ByteLen == 1 {
		wordSp = w.gs.tw
	}
	advEm := w0
	if w.gs.tfs != 0 {
		advEm += (w.gs.tc + wordSp) / w.gs.tfs
	}

	var rect GlyphRect
	if !wok || emH <= 0 {
		rect = GlyphRect{X0: origin.X, Y0: origin.Y, X1: origin.X, Y1: origin.Y}
		w.failed++
	} else {
		rect = boxFromCorners(trm,
			coords.Point{X: 0, Y: descentEm},
			coords.Point{X: advEm, Y: ascentEm})
	}

	src := &ShowRef{Stream: si, Op: oi, Operand: operand, ByteStart: byteStart, ByteEnd: byteStart + c.ByteLen}
	if w.gs.tfs != 0 {
		src.AdvUnits = (w0*w.gs.tfs + w.gs.tc + wordSp) * 1000 / w.gs.tfs
	}
	w.append(Glyph{Rune: c.Rune, Rect: rect, Source: src})

	tx := (w0*w.gs.tfs + w.gs.tc + wordSp) * w.gs.th
	w.tm = coords.Translate(tx, 0).Multiply(w.tm)
	w.pen = w.trm().Transform(coords.Point{})
	w.havePen = true
}

// separators inserts a synthetic newline or space when the pen jumped
// since the last glyph.
func (w *textWalker) separators(origin coords.Point, emH, emW float64) {
	if !w.havePen || emH <= 0 || emW <= 0 {
		return
	}
	dy := origin.Y - w.pen.Y
	dx := origin.X - w.pen.X
	switch {
	case dy < -lineDropEm*emH:
		w.appendSeparator('\n')
	case dy <= lineDropEm*emH && dx > wordGapEm*emW:
		w.appendSeparator(' ')
	}
}

func (w *textWalker) appendSeparator(r rune) {
	if n := len(w.glyphs); n > 0 {
		last := w.glyphs[n-1].Rune
		if r == ' ' && (last == ' ' || last == '\n') {
			return
		}
		if r == '\n' && last == '\n' {
			return
		}
	}
	w.append(Glyph{Rune: r, Synthetic: true, Word: -1})
}

func (w *textWalker) append(g Glyph) {
	w.offsets = append(w.offsets, w.text.Len())
	w.text.WriteRune(g.Rune)
	w.glyphs = append(w.glyphs, g)
}

// trm is the text rendering matrix for the current state.
func (w *textWalker) trm() coords.Matrix {
	scale := coords.Matrix{w.gs.tfs * w.gs.th, 0, 0, w.gs.tfs, 0, w.gs.ts}
	return scale.Multiply(w.tm).Multiply(w.gs.ctm)
}

// glyphWidth resolves a width in em units, with a neutral stand-in on
// failure so the pen keeps moving.
func glyphWidth(f *fonts.Font, code uint32) (float64, bool) {
	if f == nil {
		return fallbackWidth, false
	}
	w, ok := f.Width(code)
	if !ok {
		return fallbackWidth, false
	}
	return w / 1000, true
}

// decodeBytes decodes a show operand; without a font the bytes read as
// Latin-1 so the text stays searchable and byte ranges stay exact.
func decodeBytes(f *fonts.Font, raw []byte) []fonts.Coded {
	if f != nil {
		return f.Decode(raw)
	}
	out := make([]fonts.Coded, len(raw))
	for i, b := range raw {
		out[i] = fonts.Coded{Code: uint32(b), Rune: rune(b), ByteLen: 1}
	}
	return out
}

func boxFromCorners(m coords.Matrix, a, b coords.Point) GlyphRect {
	pts := [4]coords.Point{
		m.Transform(a),
		m.Transform(coords.Point{X: b.X, Y: a.Y}),
		m.Transform(coords.Point{X: a.X, Y: b.Y}),
		m.Transform(b),
	}
	r := GlyphRect{X0: pts[0].X, Y0: pts[0].Y, X1: pts[0].X, Y1: pts[0].Y}
	for _, p := range pts[1:] {
		if p.X < r.X0 {
			r.X0 = p.X
		}
		if p.X > r.X1 {
			r.X1 = p.X
		}
		if p.Y < r.Y0 {
			r.Y0 = p.Y
		}
		if p.Y > r.Y1 {
			r.Y1 = p.Y
		}
	}
	return r
}

func dist(a, b coords.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// buildWords assigns word indices and computes word boxes.
func buildWords(pt *PageText) {
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		var rect GlyphRect
		for i := start; i < end; i++ {
			rect = rect.Union(pt.Glyphs[i].Rect)
		}
		idx := len(pt.Words)
		for i := start; i < end; i++ {
			pt.Glyphs[i].Word = idx
		}
		pt.Words = append(pt.Words, WordBox{Start: start, End: end, Rect: rect})
		start = -1
	}
	for i := range pt.Glyphs {
		g := &pt.Glyphs[i]
		if g.Synthetic || unicode.IsSpace(g.Rune) {
			g.Word = -1
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(pt.Glyphs))
}

func numAt(ops []contentstream.Operand, i int) (float64, bool) {
	if i < 0 || i >= len(ops) {
		return 0, false
	}
	n, ok := ops[i].(contentstream.NumberOperand)
	if !ok {
		return 0, false
	}
	return n.Value, true
}

func nameAt(ops []contentstream.Operand, i int) (string, bool) {
	if i < 0 || i >= len(ops) {
		return "", false
	}
	n, ok := ops[i].(contentstream.NameOperand)
	if !ok {
		return "", false
	}
	return n.Value, true
}

func strAt(ops []contentstream.Operand, i int) ([]byte, bool) {
	if i < 0 || i >= len(ops) {
		return nil, false
	}
	s, ok := ops[i].(contentstream.StringOperand)
	if !ok {
		return nil, false
	}
	return s.Value, true
}

func matrixOperands(ops []contentstream.Operand) (coords.Matrix, bool) {
	if len(ops) < 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i := 0; i < 6; i++ {
		v, ok := numAt(ops, len(ops)-6+i)
		if !ok {
			return coords.Matrix{}, false
		}
		m[i] = v
	}
	return m, true
}

