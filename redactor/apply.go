package redactor

import (
	"fmt"
	"sort"

	"github.com/YanSamuray/cpf-censoring/contentstream"
	"github.com/YanSamuray/cpf-censoring/extractor"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
	"github.com/YanSamuray/cpf-censoring/ir/semantic"
)

// overlayFontName is the resource key for the placeholder font.
const overlayFontName = "FCensor"

// asteriskEm is the Helvetica advance of '*' in em.
const asteriskEm = 0.389

// Apply rewrites the page in place: the covered digits are excised
// from their show operands, then opaque boxes are painted above the
// content. The original content is bracketed by a fresh q/Q pair so
// the fills land in page space even when a stream leaves its own
// transform dangling.
func (r *Redactor) Apply(page *semantic.Page, targets []Target) {
	if len(targets) == 0 {
		return
	}
	r.scrubText(page, targets)
	r.paint(page, targets)
}

// excision is one byte range to remove from a show string, with the
// TJ adjustment that stands in for its advance.
type excision struct {
	start, end int
	units      float64
}

func (r *Redactor) scrubText(page *semantic.Page, targets []Target) {
	// stream index -> op index -> operand index -> excisions
	edits := map[int]map[int]map[int][]excision{}
	for _, t := range targets {
		for _, ref := range t.scrubs {
			if ref.Stream < 0 || ref.Stream >= len(page.Contents) {
				continue
			}
			ops := edits[ref.Stream]
			if ops == nil {
				ops = map[int]map[int][]excision{}
				edits[ref.Stream] = ops
			}
			operands := ops[ref.Op]
			if operands == nil {
				operands = map[int][]excision{}
				ops[ref.Op] = operands
			}
			operands[ref.Operand] = append(operands[ref.Operand],
				excision{start: ref.ByteStart, end: ref.ByteEnd, units: ref.AdvUnits})
		}
	}
	for si, opEdits := range edits {
		cs := &page.Contents[si]
		cs.Ops = rewriteStream(cs.Ops, opEdits)
		cs.Dirty = true
	}
}

func rewriteStream(ops []contentstream.Operation, edits map[int]map[int][]excision) []contentstream.Operation {
	out := make([]contentstream.Operation, 0, len(ops))
	for i, op := range ops {
		operands, ok := edits[i]
		if !ok {
			out = append(out, op)
			continue
		}
		out = append(out, rewriteShow(op, operands)...)
	}
	return out
}

// rewriteShow rebuilds one text-showing operation with excisions
// applied. Tj collapses into TJ; ' and " are replaced by their side
// effects followed by TJ, which shows the same text at the same
// positions.
func rewriteShow(op contentstream.Operation, edits map[int][]excision) []contentstream.Operation {
	keep := []contentstream.Operation{op}
	switch op.Operator {
	case "Tj":
		s, ok := stringOperand(op.Operands, 0)
		if !ok {
			return keep
		}
		return []contentstream.Operation{tjOp(scrubbedElements(s, edits[0]))}
	case "'":
		s, ok := stringOperand(op.Operands, 0)
		if !ok {
			return keep
		}
		return []contentstream.Operation{
			{Operator: "T*"},
			tjOp(scrubbedElements(s, edits[0])),
		}
	case "\"":
		s, ok := stringOperand(op.Operands, 2)
		if !ok {
			return keep
		}
		return []contentstream.Operation{
			{Operator: "Tw", Operands: op.Operands[0:1]},
			{Operator: "Tc", Operands: op.Operands[1:2]},
			{Operator: "T*"},
			tjOp(scrubbedElements(s, edits[2])),
		}
	case "TJ":
		if len(op.Operands) == 0 {
			return keep
		}
		arr, ok := op.Operands[0].(contentstream.ArrayOperand)
		if !ok {
			return keep
		}
		var vals []contentstream.Operand
		for j, el := range arr.Values {
			s, isStr := el.(contentstream.StringOperand)
			if !isStr || len(edits[j]) == 0 {
				vals = append(vals, el)
				continue
			}
			vals = append(vals, scrubbedElements(s.Value, edits[j])...)
		}
		return []contentstream.Operation{tjOp(vals)}
	}
	return keep
}

func tjOp(vals []contentstream.Operand) contentstream.Operation {
	return contentstream.Operation{
		Operator: "TJ",
		Operands: []contentstream.Operand{contentstream.ArrayOperand{Values: vals}},
	}
}

// scrubbedElements splits one show string around its excisions: kept
// byte runs stay strings, removed runs become the negative adjustment
// that preserves the advance. Adjacent removals coalesce into one
// number.
func scrubbedElements(s []byte, ex []excision) []contentstream.Operand {
	sorted := append([]excision(nil), ex...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	var out []contentstream.Operand
	pos := 0
	pending := 0.0
	flush := func() {
		if pending != 0 {
			out = append(out, contentstream.NumberOperand{Value: -pending})
			pending = 0
		}
	}
	for _, e := range sorted {
		if e.start < pos || e.end > len(s) {
			continue
		}
		if e.start > pos {
			flush()
			out = append(out, contentstream.StringOperand{Value: append([]byte(nil), s[pos:e.start]...)})
		}
		pending += e.units
		pos = e.end
	}
	flush()
	if pos < len(s) {
		out = append(out, contentstream.StringOperand{Value: append([]byte(nil), s[pos:]...)})
	}
	return out
}

func stringOperand(ops []contentstream.Operand, i int) ([]byte, bool) {
	if i >= len(ops) {
		return nil, false
	}
	s, ok := ops[i].(contentstream.StringOperand)
	if !ok {
		return nil, false
	}
	return s.Value, true
}

// paint brackets the existing content with q/Q and appends the
// overlay stream: opaque fills per cover box, then the optional
// placeholder glyphs.
func (r *Redactor) paint(page *semantic.Page, targets []Target) {
	guard := semantic.ContentStream{
		Ops:   []contentstream.Operation{{Operator: "q"}},
		Dirty: true,
	}

	ops := []contentstream.Operation{
		{Operator: "Q"},
		{Operator: "q"},
		rgbOp(r.opts.Color),
	}
	for _, t := range targets {
		for _, b := range t.Boxes {
			ops = append(ops, rectOp(b), contentstream.Operation{Operator: "f"})
		}
	}
	ops = append(ops, contentstream.Operation{Operator: "Q"})
	if r.opts.Placeholder {
		ops = append(ops, r.placeholders(page, targets)...)
	}

	contents := make([]semantic.ContentStream, 0, len(page.Contents)+2)
	contents = append(contents, guard)
	contents = append(contents, page.Contents...)
	contents = append(contents, semantic.ContentStream{Ops: ops, Dirty: true})
	page.Contents = contents
}

func rgbOp(c Color) contentstream.Operation {
	return contentstream.Operation{Operator: "rg", Operands: []contentstream.Operand{
		contentstream.NumberOperand{Value: c.R},
		contentstream.NumberOperand{Value: c.G},
		contentstream.NumberOperand{Value: c.B},
	}}
}

func rectOp(b extractor.GlyphRect) contentstream.Operation {
	return contentstream.Operation{Operator: "re", Operands: []contentstream.Operand{
		contentstream.NumberOperand{Value: b.X0},
		contentstream.NumberOperand{Value: b.Y0},
		contentstream.NumberOperand{Value: b.X1 - b.X0},
		contentstream.NumberOperand{Value: b.Y1 - b.Y0},
	}}
}

// placeholders draws white asterisks centered over each cover box so
// the output reads as removed rather than blank.
func (r *Redactor) placeholders(page *semantic.Page, targets []Target) []contentstream.Operation {
	fontName, ok := r.ensureOverlayFont(page)
	if !ok {
		r.opts.Logger.Warn("placeholder font could not be registered; boxes stay plain")
		return nil
	}
	ops := []contentstream.Operation{{Operator: "q"}}
	for _, t := range targets {
		for i, b := range t.Boxes {
			count := 3
			if i == 1 {
				count = 2
			}
			ops = append(ops, asteriskOps(fontName, b, count)...)
		}
	}
	return append(ops, contentstream.Operation{Operator: "Q"})
}

func asteriskOps(font string, b extractor.GlyphRect, count int) []contentstream.Operation {
	h := b.Y1 - b.Y0
	w := b.X1 - b.X0
	size := h * 0.9
	x := b.X0 + (w-float64(count)*asteriskEm*size)/2
	if x < b.X0 {
		x = b.X0
	}
	y := b.Y0 + h*0.12
	stars := make([]byte, count)
	for i := range stars {
		stars[i] = '*'
	}
	return []contentstream.Operation{
		{Operator: "BT"},
		{Operator: "Tf", Operands: []contentstream.Operand{
			contentstream.NameOperand{Value: font},
			contentstream.NumberOperand{Value: size},
		}},
		rgbOp(Color{R: 1, G: 1, B: 1}),
		{Operator: "Td", Operands: []contentstream.Operand{
			contentstream.NumberOperand{Value: x},
			contentstream.NumberOperand{Value: y},
		}},
		{Operator: "Tj", Operands: []contentstream.Operand{
			contentstream.StringOperand{Value: stars},
		}},
		{Operator: "ET"},
	}
}

// ensureOverlayFont registers a Helvetica entry in the page's font
// resources and returns its key. A Helvetica already present under
// the key, added for an earlier page sharing the dictionary, is
// reused.
func (r *Redactor) ensureOverlayFont(page *semantic.Page) (string, bool) {
	res := r.resourcesDict(page)
	if res == nil {
		return "", false
	}
	fd := r.fontsDict(res)
	if fd == nil {
		return "", false
	}

	name := overlayFontName
	for i := 2; ; i++ {
		v, ok := fd.Get(raw.NameLiteral(name))
		if !ok {
			break
		}
		if r.isHelvetica(v) {
			return name, true
		}
		name = fmt.Sprintf("%s%d", overlayFontName, i)
	}

	f := raw.Dict()
	f.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	f.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type1"))
	f.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral("Helvetica"))
	fd.Set(raw.NameLiteral(name), f)
	return name, true
}

func (r *Redactor) resourcesDict(page *semantic.Page) raw.Dictionary {
	if page.Resources != nil && page.Resources.Dict != nil {
		return page.Resources.Dict
	}
	if page.RawDict == nil {
		return nil
	}
	d := raw.Dict()
	page.RawDict.Set(raw.NameLiteral("Resources"), d)
	if page.Resources == nil {
		page.Resources = &semantic.Resources{}
	}
	page.Resources.Dict = d
	return d
}

func (r *Redactor) fontsDict(res raw.Dictionary) raw.Dictionary {
	v, ok := res.Get(raw.NameLiteral("Font"))
	if !ok {
		d := raw.Dict()
		res.Set(raw.NameLiteral("Font"), d)
		return d
	}
	if d, ok := r.resolve(v).(raw.Dictionary); ok {
		return d
	}
	return nil
}

func (r *Redactor) isHelvetica(v raw.Object) bool {
	d, ok := r.resolve(v).(raw.Dictionary)
	if !ok {
		return false
	}
	base, _ := raw.DictName(d, "BaseFont")
	return base == "Helvetica"
}

func (r *Redactor) resolve(v raw.Object) raw.Object {
	if r.doc == nil {
		return v
	}
	return r.doc.Resolve(v)
}
