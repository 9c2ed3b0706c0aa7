// Package fonts builds per-resource font models from PDF font
// dictionaries and answers the two questions text processing needs:
// which rune does a character code stand for, and how wide is it.
package fonts

import (
	"context"
	"fmt"

	"github.com/YanSamuray/cpf-censoring/filters"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
)

// Coded is one character code decoded out of a show-operand string.
// ByteLen records how many operand bytes the code occupied so the sum
// over a string always equals the operand length.
type Coded struct {
	Code    uint32
	Rune    rune
	ByteLen int
}

// Font is the reading-side model of a page font resource.
type Font struct {
	Name         string // resource key, e.g. "F1"
	Subtype      string
	BaseFont     string
	CID          bool
	FirstChar    int
	Widths       map[int]float64 // by code (simple) or CID (composite), 1000-unit glyph space
	DefaultWidth float64         // /DW or /MissingWidth; zero when absent
	Encoding     *Encoding       // simple fonts only
	ToUnicode    map[uint32]rune

	program  *glyphProgram
	cidToGID []byte // /CIDToGIDMap stream bytes; nil means identity
}

// Load builds a Font from its dictionary, following references through
// doc. The name is the resource key the page uses for it; embedded
// streams (ToUnicode, CIDToGIDMap, font programs) decode under limits.
func Load(ctx context.Context, doc *raw.Document, name string, dict raw.Dictionary, limits filters.Limits) (*Font, error) {
	f := &Font{
		Name:   name,
		Widths: make(map[int]float64),
	}
	f.Subtype, _ = resolveName(doc, dict, "Subtype")
	f.BaseFont, _ = resolveName(doc, dict, "BaseFont")

	var err error
	if f.Subtype == "Type0" {
		err = f.loadComposite(ctx, doc, dict, limits)
	} else {
		err = f.loadSimple(ctx, doc, dict, limits)
	}
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", name, err)
	}

	if stm := resolveStream(doc, dict, "ToUnicode"); stm != nil {
		data, derr := decodeStream(ctx, stm, limits)
		if derr == nil {
			if m, perr := parseToUnicode(data); perr == nil {
				f.ToUnicode = m
			}
		}
	}
	return f, nil
}

func (f *Font) loadSimple(ctx context.Context, doc *raw.Document, dict raw.Dictionary, limits filters.Limits) error {
	if n, ok := resolveInt(doc, dict, "FirstChar"); ok {
		f.FirstChar = int(n)
	}
	if arr := resolveArray(doc, dict, "Widths"); arr != nil {
		for i, item := range arr.Items {
			if n, ok := doc.Resolve(item).(raw.Number); ok {
				f.Widths[f.FirstChar+i] = n.Float()
			}
		}
	}

	f.Encoding = standardEncoding()
	switch enc := doc.Resolve(getOrNull(dict, "Encoding")).(type) {
	case raw.Name:
		if e := builtinEncoding(enc.Value()); e != nil {
			f.Encoding = e
		}
	case raw.Dictionary:
		if base, ok := resolveName(doc, enc, "BaseEncoding"); ok {
			if e := builtinEncoding(base); e != nil {
				f.Encoding = e
			}
		}
		if diff := resolveArray(doc, enc, "Differences"); diff != nil {
			f.Encoding = f.Encoding.withDifferences(doc, diff)
		}
	}

	if desc := resolveDict(doc, dict, "FontDescriptor"); desc != nil {
		if mw, ok := resolveNumber(doc, desc, "MissingWidth"); ok {
			f.DefaultWidth = mw
		}
		f.loadProgram(ctx, doc, desc, limits)
	}
	return nil
}

func (f *Font) loadComposite(ctx context.Context, doc *raw.Document, dict raw.Dictionary, limits filters.Limits) error {
	f.CID = true
	f.DefaultWidth = 1000

	arr := resolveArray(doc, dict, "DescendantFonts")
	if arr == nil || len(arr.Items) == 0 {
		return fmt.Errorf("composite font without descendant")
	}
	desc, ok := doc.Resolve(arr.Items[0]).(raw.Dictionary)
	if !ok {
		return fmt.Errorf("descendant is not a dictionary")
	}

	if dw, ok := resolveNumber(doc, desc, "DW"); ok {
		f.DefaultWidth = dw
	}
	if w := resolveArray(doc, desc, "W"); w != nil {
		if err := f.parseCIDWidths(doc, w); err != nil {
			return err
		}
	}

	if m, ok := doc.Resolve(getOrNull(desc, "CIDToGIDMap")).(*raw.StreamObj); ok {
		if data, err := decodeStream(ctx, m, limits); err == nil {
			f.cidToGID = data
		}
	}

	if fd := resolveDict(doc, desc, "FontDescriptor"); fd != nil {
		f.loadProgram(ctx, doc, fd, limits)
	}
	return nil
}

// parseCIDWidths reads a /W array. Two entry forms alternate freely:
// "c [w1 w2 ...]" assigns consecutive CIDs starting at c, and
// "c1 c2 w" assigns w to the whole range.
func (f *Font) parseCIDWidths(doc *raw.Document, arr *raw.ArrayObj) error {
	items := arr.Items
	for i := 0; i < len(items); {
		first, ok := doc.Resolve(items[i]).(raw.Number)
		if !ok {
			return fmt.Errorf("/W entry %d: expected number", i)
		}
		i++
		if i >= len(items) {
			return fmt.Errorf("/W truncated after CID %d", first.Int())
		}
		switch next := doc.Resolve(items[i]).(type) {
		case *raw.ArrayObj:
			for k, item := range next.Items {
				if w, ok := doc.Resolve(item).(raw.Number); ok {
					f.Widths[int(first.Int())+k] = w.Float()
				}
			}
			i++
		case raw.Number:
			if i+1 >= len(items) {
				return fmt.Errorf("/W range %d..%d missing width", first.Int(), next.Int())
			}
			w, ok := doc.Resolve(items[i+1]).(raw.Number)
			if !ok {
				return fmt.Errorf("/W range %d..%d: width is not a number", first.Int(), next.Int())
			}
			lo, hi := int(first.Int()), int(next.Int())
			if hi < lo || hi-lo > 65535 {
				return fmt.Errorf("/W range %d..%d out of order", lo, hi)
			}
			for c := lo; c <= hi; c++ {
				f.Widths[c] = w.Float()
			}
			i += 2
		default:
			return fmt.Errorf("/W entry %d has type %s", i, next.Type())
		}
	}
	return nil
}

// loadProgram parses an embedded glyph program when the descriptor
// carries one sfnt can read: /FontFile2 always, /FontFile3 only for the
// OpenType flavor.
func (f *Font) loadProgram(ctx context.Context, doc *raw.Document, desc raw.Dictionary, limits filters.Limits) {
	stm := resolveStream(doc, desc, "FontFile2")
	if stm == nil {
		if s3 := resolveStream(doc, desc, "FontFile3"); s3 != nil {
			if sub, _ := raw.DictName(s3.Dict, "Subtype"); sub == "OpenType" {
				stm = s3
			}
		}
	}
	if stm == nil {
		return
	}
	data, err := decodeStream(ctx, stm, limits)
	if err != nil {
		return
	}
	if prog, err := parseGlyphProgram(data); err == nil {
		f.program = prog
	}
}

// Width returns the advance of a code in 1000-unit glyph space. The
// fallback chain is explicit widths, then the embedded program, then
// the default width, then the built-in standard-14 table.
func (f *Font) Width(code uint32) (float64, bool) {
	if w, ok := f.Widths[int(code)]; ok {
		return w, true
	}
	if f.program != nil {
		if f.CID {
			if w, ok := f.program.advanceByGID(f.gidFor(code)); ok {
				return w, true
			}
		} else if r := f.encodedRune(code); r != 0 {
			if w, ok := f.program.advanceByRune(r); ok {
				return w, true
			}
		}
	}
	if f.DefaultWidth > 0 {
		return f.DefaultWidth, true
	}
	if w, ok := standardWidth(f.BaseFont, f.Rune(code)); ok {
		return w, true
	}
	return 0, false
}

// gidFor maps a CID to a glyph index, via the /CIDToGIDMap stream when
// present and identically otherwise.
func (f *Font) gidFor(cid uint32) uint32 {
	if f.cidToGID == nil {
		return cid
	}
	i := int(cid) * 2
	if i+1 >= len(f.cidToGID) {
		return 0
	}
	return uint32(f.cidToGID[i])<<8 | uint32(f.cidToGID[i+1])
}

// encodedRune is the encoding-table rune for a simple-font code,
// ignoring ToUnicode. It is the handle for cmap lookups in an embedded
// program.
func (f *Font) encodedRune(code uint32) rune {
	if f.Encoding == nil || code > 0xff {
		return 0
	}
	return f.Encoding.Rune(byte(code))
}

// Rune maps a code to text. ToUnicode wins when present; simple fonts
// fall back to their encoding table. An unmappable code comes back as
// U+FFFD so downstream offsets stay aligned with the code stream.
func (f *Font) Rune(code uint32) rune {
	if r, ok := f.ToUnicode[code]; ok {
		return r
	}
	if r := f.encodedRune(code); r != 0 {
		return r
	}
	return '�'
}

// Decode splits a show-operand string into coded glyphs. Composite
// fonts consume 2 bytes per code (Identity ordering), simple fonts one.
// A trailing odd byte in a composite string still yields an entry so
// byte accounting stays exact.
func (f *Font) Decode(b []byte) []Coded {
	if !f.CID {
		out := make([]Coded, len(b))
		for i, c := range b {
			code := uint32(c)
			out[i] = Coded{Code: code, Rune: f.Rune(code), ByteLen: 1}
		}
		return out
	}
	out := make([]Coded, 0, len(b)/2+1)
	for i := 0; i < len(b); i += 2 {
		if i+1 >= len(b) {
			code := uint32(b[i])
			out = append(out, Coded{Code: code, Rune: f.Rune(code), ByteLen: 1})
			break
		}
		code := uint32(b[i])<<8 | uint32(b[i+1])
		out = append(out, Coded{Code: code, Rune: f.Rune(code), ByteLen: 2})
	}
	return out
}

func getOrNull(d raw.Dictionary, key string) raw.Object {
	if v, ok := d.Get(raw.NameLiteral(key)); ok {
		return v
	}
	return raw.NullObj{}
}

func resolveDict(doc *raw.Document, d raw.Dictionary, key string) raw.Dictionary {
	if v, ok := doc.Resolve(getOrNull(d, key)).(raw.Dictionary); ok {
		return v
	}
	return nil
}

func resolveArray(doc *raw.Document, d raw.Dictionary, key string) *raw.ArrayObj {
	if v, ok := doc.Resolve(getOrNull(d, key)).(*raw.ArrayObj); ok {
		return v
	}
	return nil
}

func resolveStream(doc *raw.Document, d raw.Dictionary, key string) *raw.StreamObj {
	if v, ok := doc.Resolve(getOrNull(d, key)).(*raw.StreamObj); ok {
		return v
	}
	return nil
}

func resolveName(doc *raw.Document, d raw.Dictionary, key string) (string, bool) {
	if v, ok := doc.Resolve(getOrNull(d, key)).(raw.Name); ok {
		return v.Value(), true
	}
	return "", false
}

func resolveNumber(doc *raw.Document, d raw.Dictionary, key string) (float64, bool) {
	if v, ok := doc.Resolve(getOrNull(d, key)).(raw.Number); ok {
		return v.Float(), true
	}
	return 0, false
}

func resolveInt(doc *raw.Document, d raw.Dictionary, key string) (int64, bool) {
	if v, ok := doc.Resolve(getOrNull(d, key)).(raw.Number); ok && v.IsInteger() {
		return v.Int(), true
	}
	return 0, false
}

// decodeStream runs a stream's filter chain.
func decodeStream(ctx context.Context, stm *raw.StreamObj, limits filters.Limits) ([]byte, error) {
	names, params := filters.ForStream(stm.Dict)
	if len(names) == 0 {
		return stm.Data, nil
	}
	return filters.Default(limits).Decode(ctx, stm.Data, names, params)
}
