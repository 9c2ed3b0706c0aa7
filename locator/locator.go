// Package locator finds CPF numbers in extracted page text. Matching
// is shape-only: any 11-digit string in one of the two surface forms
// counts, with no check-digit validation.
package locator

import "regexp"

// cpfDigits is the number of digits in a CPF.
const cpfDigits = 11

// cpfPattern matches the punctuated form or a whole digit run. The run
// alternative is greedy so an 11-digit window inside a longer number is
// consumed with its run and rejected by the digit count, never matched
// on its own.
var cpfPattern = regexp.MustCompile(`\d{3}\.\d{3}\.\d{3}-\d{2}|\d{11,}`)

// DigitPosition maps one logical CPF digit to the text offset of the
// character that carries it.
type DigitPosition struct {
	DigitIndex int // 0..10
	CharOffset int // byte offset into the page text
}

// CPFMatch is one located CPF. Separators occupy offsets inside the
// span, so DigitPositions records where each of the 11 digits actually
// sits.
type CPFMatch struct {
	RawText        string
	StartOffset    int
	EndOffset      int
	DigitPositions []DigitPosition
}

// Locator turns page text into CPF matches. It is an interface so a
// stricter matcher (check digits, fuzzy joining) can replace the
// default without touching the redaction side.
type Locator interface {
	FindCPFs(pageText string) []CPFMatch
}

// CPFLocator is the default shape matcher.
type CPFLocator struct{}

func NewCPFLocator() *CPFLocator { return &CPFLocator{} }

// FindCPFs returns matches in text order. A candidate adjacent to a
// digit on either side is dropped: it is part of a longer number. Text
// runs split by a line break never join, so a CPF broken across lines
// goes undetected rather than guessed at.
func (*CPFLocator) FindCPFs(pageText string) []CPFMatch {
	var out []CPFMatch
	for _, loc := range cpfPattern.FindAllStringIndex(pageText, -1) {
		start, end := loc[0], loc[1]
		if digitAt(pageText, start-1) || digitAt(pageText, end) {
			continue
		}
		if m, ok := newMatch(pageText, start, end); ok {
			out = append(out, m)
		}
	}
	return out
}

func newMatch(text string, start, end int) (CPFMatch, bool) {
	m := CPFMatch{
		RawText:     text[start:end],
		StartOffset: start,
		EndOffset:   end,
	}
	for i := 0; i < len(m.RawText); i++ {
		if c := m.RawText[i]; c >= '0' && c <= '9' {
			m.DigitPositions = append(m.DigitPositions, DigitPosition{
				DigitIndex: len(m.DigitPositions),
				CharOffset: start + i,
			})
		}
	}
	if len(m.DigitPositions) != cpfDigits {
		return CPFMatch{}, false
	}
	return m, true
}

func digitAt(s string, i int) bool {
	return i >= 0 && i < len(s) && s[i] >= '0' && s[i] <= '9'
}
