package fonts

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/YanSamuray/cpf-censoring/recovery"
	"github.com/YanSamuray/cpf-censoring/scanner"
)

// rangeCap bounds a single bfrange expansion. Real CMaps stay far
// below it; corrupt bounds would otherwise fill memory.
const rangeCap = 65536

// cmapJunk skips tokens a ToUnicode CMap may carry that plain PDF
// syntax does not, such as PostScript procedure braces.
type cmapJunk struct{}

func (cmapJunk) OnError(ctx recovery.Context, err error, loc recovery.Location) recovery.Action {
	return recovery.ActionSkip
}

// parseToUnicode reads the bfchar and bfrange sections of a ToUnicode
// CMap. The surrounding CMap program is skipped, not interpreted.
func parseToUnicode(data []byte) (map[uint32]rune, error) {
	s := scanner.New(data, scanner.Config{Recovery: cmapJunk{}})
	out := make(map[uint32]rune)
	for {
		tok, err := s.Next()
		if err != nil {
			break
		}
		if tok.Type != scanner.TokenKeyword {
			continue
		}
		var serr error
		switch tok.Str {
		case "beginbfchar":
			serr = readBFChars(s, out)
		case "beginbfrange":
			serr = readBFRanges(s, out)
		}
		if serr != nil {
			return nil, serr
		}
	}
	return out, nil
}

func readBFChars(s scanner.Scanner, out map[uint32]rune) error {
	for {
		tok, err := s.Next()
		if err != nil {
			return err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "endbfchar" {
			return nil
		}
		if tok.Type != scanner.TokenString {
			continue
		}
		dst, err := s.Next()
		if err != nil {
			return err
		}
		if dst.Type != scanner.TokenString {
			continue
		}
		if r := utf16FirstRune(dst.Bytes); r != 0 {
			out[codeOf(tok.Bytes)] = r
		}
	}
}

func readBFRanges(s scanner.Scanner, out map[uint32]rune) error {
	for {
		tok, err := s.Next()
		if err != nil {
			return err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "endbfrange" {
			return nil
		}
		if tok.Type != scanner.TokenString {
			continue
		}
		lo := codeOf(tok.Bytes)
		hiTok, err := s.Next()
		if err != nil {
			return err
		}
		if hiTok.Type != scanner.TokenString {
			continue
		}
		hi := codeOf(hiTok.Bytes)
		dst, err := s.Next()
		if err != nil {
			return err
		}
		// The destination is consumed either way; a rejected range must
		// not leave its tokens to be misread as the next range.
		sane := hi >= lo && hi-lo < rangeCap
		switch dst.Type {
		case scanner.TokenString:
			if !sane {
				continue
			}
			for c := lo; c <= hi; c++ {
				if r := utf16FirstRune(incremented(dst.Bytes, c-lo)); r != 0 {
					out[c] = r
				}
			}
		case scanner.TokenArrayOpen:
			c := lo
			for {
				t, err := s.Next()
				if err != nil {
					return err
				}
				if t.Type == scanner.TokenArrayClose {
					break
				}
				if !sane || t.Type != scanner.TokenString {
					continue
				}
				if c <= hi {
					if r := utf16FirstRune(t.Bytes); r != 0 {
						out[c] = r
					}
					c++
				}
			}
		}
	}
}

// incremented adds delta to the last UTF-16 code unit of base, the
// bfrange continuation rule.
func incremented(base []byte, delta uint32) []byte {
	b := append([]byte(nil), base...)
	switch {
	case len(b) >= 2:
		v := uint32(b[len(b)-2])<<8 | uint32(b[len(b)-1])
		v += delta
		b[len(b)-2] = byte(v >> 8)
		b[len(b)-1] = byte(v)
	case len(b) == 1:
		b[0] += byte(delta)
	}
	return b
}

// codeOf folds up to 4 big-endian bytes into a character code.
func codeOf(b []byte) uint32 {
	if len(b) > 4 {
		b = b[len(b)-4:]
	}
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// utf16FirstRune decodes a UTF-16BE destination and returns its first
// rune. Single-byte destinations appear in loose CMaps and are taken
// as Latin-1.
func utf16FirstRune(b []byte) rune {
	if len(b) == 0 {
		return 0
	}
	if len(b) == 1 {
		return rune(b[0])
	}
	u8, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil || len(u8) == 0 {
		return 0
	}
	r, _ := utf8.DecodeRune(u8)
	if r == utf8.RuneError {
		return 0
	}
	return r
}
