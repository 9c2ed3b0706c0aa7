package fonts

import (
	"strconv"

	"golang.org/x/text/encoding/charmap"

	"github.com/YanSamuray/cpf-censoring/ir/raw"
)

// Encoding maps single-byte character codes to runes. A zero entry
// means the code is undefined in this encoding.
type Encoding struct {
	runes [256]rune
}

func (e *Encoding) Rune(code byte) rune { return e.runes[code] }

// withDifferences copies the encoding and applies a /Differences array:
// a number resets the current code, each following name assigns its
// glyph to consecutive codes.
func (e *Encoding) withDifferences(doc *raw.Document, arr *raw.ArrayObj) *Encoding {
	out := &Encoding{runes: e.runes}
	code := 0
	for _, item := range arr.Items {
		switch v := doc.Resolve(item).(type) {
		case raw.Number:
			code = int(v.Int())
		case raw.Name:
			if code >= 0 && code < 256 {
				if r := runeForGlyphName(v.Value()); r != 0 {
					out.runes[code] = r
				}
			}
			code++
		}
	}
	return out
}

func builtinEncoding(name string) *Encoding {
	switch name {
	case "WinAnsiEncoding":
		return charmapEncoding(charmap.Windows1252)
	case "MacRomanEncoding":
		return charmapEncoding(charmap.Macintosh)
	case "StandardEncoding":
		return standardEncoding()
	}
	return nil
}

func charmapEncoding(cm *charmap.Charmap) *Encoding {
	e := &Encoding{}
	for i := 0; i < 256; i++ {
		r := cm.DecodeByte(byte(i))
		if r == '�' {
			continue
		}
		e.runes[i] = r
	}
	return e
}

// standardEncoding approximates Adobe StandardEncoding: ASCII in the
// printable range with the two typographic quote substitutions. The
// upper half is left undefined; text relying on it carries either a
// ToUnicode map or an explicit /Differences in practice.
func standardEncoding() *Encoding {
	e := &Encoding{}
	for i := 0x20; i < 0x7f; i++ {
		e.runes[i] = rune(i)
	}
	e.runes[0x27] = '’' // quoteright
	e.runes[0x60] = '‘' // quoteleft
	return e
}

// runeForGlyphName resolves a glyph name to a rune: the common AGL
// subset, the uniXXXX and uXXXX forms, and single-character names.
func runeForGlyphName(name string) rune {
	if r, ok := aglNames[name]; ok {
		return r
	}
	if len(name) == 7 && name[:3] == "uni" {
		if v, err := strconv.ParseUint(name[3:], 16, 32); err == nil {
			return rune(v)
		}
	}
	if len(name) >= 5 && len(name) <= 7 && name[0] == 'u' {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return rune(v)
		}
	}
	if len(name) == 1 {
		return rune(name[0])
	}
	return 0
}

// aglNames is the slice of the Adobe Glyph List that body text in
// Latin-script documents actually uses: digits, ASCII punctuation, and
// the accented letters of Portuguese and its neighbors. Single-letter
// names (A, b, ...) resolve through the length-1 rule instead.
var aglNames = map[string]rune{
	"space":          ' ',
	"exclam":         '!',
	"quotedbl":       '"',
	"numbersign":     '#',
	"dollar":         '$',
	"percent":        '%',
	"ampersand":      '&',
	"quotesingle":    '\'',
	"quoteright":     '’',
	"quoteleft":      '‘',
	"quotedblleft":   '“',
	"quotedblright":  '”',
	"parenleft":      '(',
	"parenright":     ')',
	"asterisk":       '*',
	"plus":           '+',
	"comma":          ',',
	"hyphen":         '-',
	"endash":         '–',
	"emdash":         '—',
	"period":         '.',
	"slash":          '/',
	"zero":           '0',
	"one":            '1',
	"two":            '2',
	"three":          '3',
	"four":           '4',
	"five":           '5',
	"six":            '6',
	"seven":          '7',
	"eight":          '8',
	"nine":           '9',
	"colon":          ':',
	"semicolon":      ';',
	"less":           '<',
	"equal":          '=',
	"greater":        '>',
	"question":       '?',
	"at":             '@',
	"bracketleft":    '[',
	"backslash":      '\\',
	"bracketright":   ']',
	"asciicircum":    '^',
	"underscore":     '_',
	"grave":          '`',
	"braceleft":      '{',
	"bar":            '|',
	"braceright":     '}',
	"asciitilde":     '~',
	"degree":         '°',
	"ordfeminine":    'ª',
	"ordmasculine":   'º',
	"section":        '§',
	"Agrave":         'À',
	"Aacute":         'Á',
	"Acircumflex":    'Â',
	"Atilde":         'Ã',
	"Ccedilla":       'Ç',
	"Eacute":         'É',
	"Ecircumflex":    'Ê',
	"Iacute":         'Í',
	"Oacute":         'Ó',
	"Ocircumflex":    'Ô',
	"Otilde":         'Õ',
	"Uacute":         'Ú',
	"Ucircumflex":    'Û',
	"agrave":         'à',
	"aacute":         'á',
	"acircumflex":    'â',
	"atilde":         'ã',
	"ccedilla":       'ç',
	"eacute":         'é',
	"ecircumflex":    'ê',
	"iacute":         'í',
	"oacute":         'ó',
	"ocircumflex":    'ô',
	"otilde":         'õ',
	"uacute":         'ú',
	"ucircumflex":    'û',
	"ntilde":         'ñ',
	"Ntilde":         'Ñ',
	"adieresis":      'ä',
	"edieresis":      'ë',
	"idieresis":      'ï',
	"odieresis":      'ö',
	"udieresis":      'ü',
	"egrave":         'è',
	"igrave":         'ì',
	"ograve":         'ò',
	"ugrave":         'ù',
	"guillemotleft":  '«',
	"guillemotright": '»',
	"bullet":         '•',
	"ellipsis":       '…',
	"Euro":           '€',
	"currency":       '¤',
	"cent":           '¢',
	"sterling":       '£',
}
