package fonts

import (
	"context"
	"testing"

	"github.com/YanSamuray/cpf-censoring/filters"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
)

func dict(kv map[string]raw.Object) *raw.DictObj {
	d := raw.Dict()
	for k, v := range kv {
		d.Set(raw.NameLiteral(k), v)
	}
	return d
}

func TestLoadSimpleFont(t *testing.T) {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{
		{Num: 2, Gen: 0}: raw.NewArray(raw.NumberInt(500), raw.NumberInt(600), raw.NumberInt(700)),
		{Num: 3, Gen: 0}: dict(map[string]raw.Object{
			"Type":         raw.NameLiteral("FontDescriptor"),
			"MissingWidth": raw.NumberInt(250),
		}),
	}}
	fd := dict(map[string]raw.Object{
		"Type":           raw.NameLiteral("Font"),
		"Subtype":        raw.NameLiteral("TrueType"),
		"BaseFont":       raw.NameLiteral("ABCDEF+SomeSans"),
		"FirstChar":      raw.NumberInt(65),
		"Widths":         raw.Ref(2, 0),
		"Encoding":       raw.NameLiteral("WinAnsiEncoding"),
		"FontDescriptor": raw.Ref(3, 0),
	})

	f, err := Load(context.Background(), doc, "F1", fd, filters.Limits{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.CID {
		t.Fatal("simple font classified as CID")
	}
	if f.FirstChar != 65 {
		t.Fatalf("FirstChar = %d, want 65", f.FirstChar)
	}
	for code, want := range map[int]float64{65: 500, 66: 600, 67: 700} {
		if got := f.Widths[code]; got != want {
			t.Errorf("Widths[%d] = %v, want %v", code, got, want)
		}
	}
	if w, ok := f.Width(90); !ok || w != 250 {
		t.Errorf("Width(90) = %v,%v, want 250 from /MissingWidth", w, ok)
	}
	if r := f.Rune(65); r != 'A' {
		t.Errorf("Rune(65) = %q, want 'A'", r)
	}
}

func TestLoadCIDWidths(t *testing.T) {
	tests := []struct {
		name  string
		w     *raw.ArrayObj
		dw    raw.Object
		want  map[uint32]float64
		check []uint32
	}{
		{
			name: "list form",
			w:    raw.NewArray(raw.NumberInt(1), raw.NewArray(raw.NumberInt(500), raw.NumberInt(600))),
			want: map[uint32]float64{1: 500, 2: 600, 99: 1000},
		},
		{
			name: "range form",
			w:    raw.NewArray(raw.NumberInt(10), raw.NumberInt(12), raw.NumberInt(250)),
			want: map[uint32]float64{10: 250, 11: 250, 12: 250},
		},
		{
			name: "explicit default",
			w:    raw.NewArray(raw.NumberInt(1), raw.NewArray(raw.NumberInt(500))),
			dw:   raw.NumberInt(800),
			want: map[uint32]float64{1: 500, 40: 800},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			descendant := dict(map[string]raw.Object{
				"Type":     raw.NameLiteral("Font"),
				"Subtype":  raw.NameLiteral("CIDFontType2"),
				"BaseFont": raw.NameLiteral("SomeSans"),
				"W":        tt.w,
			})
			if tt.dw != nil {
				descendant.Set(raw.NameLiteral("DW"), tt.dw)
			}
			doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{
				{Num: 5, Gen: 0}: descendant,
			}}
			fd := dict(map[string]raw.Object{
				"Type":            raw.NameLiteral("Font"),
				"Subtype":         raw.NameLiteral("Type0"),
				"BaseFont":        raw.NameLiteral("SomeSans"),
				"Encoding":        raw.NameLiteral("Identity-H"),
				"DescendantFonts": raw.NewArray(raw.Ref(5, 0)),
			})

			f, err := Load(context.Background(), doc, "F2", fd, filters.Limits{})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !f.CID {
				t.Fatal("Type0 font not classified as CID")
			}
			for code, want := range tt.want {
				if w, ok := f.Width(code); !ok || w != want {
					t.Errorf("Width(%d) = %v,%v, want %v", code, w, ok, want)
				}
			}
		})
	}
}

func TestDecodeSimple(t *testing.T) {
	doc := &raw.Document{}
	fd := dict(map[string]raw.Object{
		"Subtype":  raw.NameLiteral("Type1"),
		"BaseFont": raw.NameLiteral("Helvetica"),
		"Encoding": raw.NameLiteral("WinAnsiEncoding"),
	})
	f, err := Load(context.Background(), doc, "F1", fd, filters.Limits{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := f.Decode([]byte("Ol\xe1"))
	if len(got) != 3 {
		t.Fatalf("Decode yielded %d glyphs, want 3", len(got))
	}
	wantRunes := []rune{'O', 'l', 'á'}
	for i, c := range got {
		if c.ByteLen != 1 {
			t.Errorf("glyph %d ByteLen = %d, want 1", i, c.ByteLen)
		}
		if c.Rune != wantRunes[i] {
			t.Errorf("glyph %d rune = %q, want %q", i, c.Rune, wantRunes[i])
		}
	}
}

func TestDecodeCIDPairs(t *testing.T) {
	f := &Font{CID: true, ToUnicode: map[uint32]rune{0x41: 'A', 0x42: 'B'}}

	got := f.Decode([]byte{0x00, 0x41, 0x00, 0x42, 0x07})
	if len(got) != 3 {
		t.Fatalf("Decode yielded %d glyphs, want 3", len(got))
	}
	if got[0].Code != 0x41 || got[0].Rune != 'A' || got[0].ByteLen != 2 {
		t.Errorf("glyph 0 = %+v", got[0])
	}
	if got[1].Code != 0x42 || got[1].Rune != 'B' || got[1].ByteLen != 2 {
		t.Errorf("glyph 1 = %+v", got[1])
	}
	if got[2].Code != 0x07 || got[2].ByteLen != 1 {
		t.Errorf("trailing odd byte = %+v", got[2])
	}
	total := 0
	for _, c := range got {
		total += c.ByteLen
	}
	if total != 5 {
		t.Fatalf("ByteLen sum = %d, want 5", total)
	}
}

func TestRuneUnmappableIsReplacement(t *testing.T) {
	f := &Font{CID: true}
	if r := f.Rune(0x1234); r != '�' {
		t.Fatalf("Rune = %q, want U+FFFD", r)
	}
}

func TestWidthFallsBackToStandardTable(t *testing.T) {
	doc := &raw.Document{}
	fd := dict(map[string]raw.Object{
		"Subtype":  raw.NameLiteral("Type1"),
		"BaseFont": raw.NameLiteral("Helvetica"),
	})
	f, err := Load(context.Background(), doc, "F1", fd, filters.Limits{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w, ok := f.Width(uint32('0')); !ok || w != 556 {
		t.Fatalf("Width('0') = %v,%v, want 556", w, ok)
	}
	if _, ok := f.Width(0x01); ok {
		t.Fatal("control code resolved a width with no table entry")
	}
}

func TestStandardWidth(t *testing.T) {
	tests := []struct {
		base string
		r    rune
		want float64
		ok   bool
	}{
		{"Helvetica", '0', 556, true},
		{"Helvetica-Oblique", 'i', 222, true},
		{"ABCDEF+Helvetica-Bold", 'A', 722, true},
		{"Arial-BoldMT", 'i', 278, true},
		{"Courier", 'W', 600, true},
		{"CourierNewPSMT", 'i', 600, true},
		{"Times-Roman", '0', 500, true},
		{"Times-Bold", 'm', 833, true},
		{"Times-Italic", 'a', 500, true},
		{"Times-BoldItalic", 'W', 889, true},
		{"Symbol", 'x', 0, false},
		{"Helvetica", 'ã', 0, false},
	}
	for _, tt := range tests {
		got, ok := standardWidth(tt.base, tt.r)
		if ok != tt.ok || got != tt.want {
			t.Errorf("standardWidth(%q, %q) = %v,%v, want %v,%v", tt.base, tt.r, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadFontWithToUnicode(t *testing.T) {
	cmap := `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
1 begincodespacerange
<00> <FF>
endcodespacerange
1 beginbfchar
<41> <0030>
endbfchar
endcmap
end
end
`
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{
		{Num: 8, Gen: 0}: raw.NewStream(raw.Dict(), []byte(cmap)),
	}}
	fd := dict(map[string]raw.Object{
		"Subtype":   raw.NameLiteral("TrueType"),
		"BaseFont":  raw.NameLiteral("SomeSans"),
		"ToUnicode": raw.Ref(8, 0),
	})
	f, err := Load(context.Background(), doc, "F1", fd, filters.Limits{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r := f.Rune(0x41); r != '0' {
		t.Fatalf("Rune(0x41) = %q, want '0' via ToUnicode", r)
	}
}
