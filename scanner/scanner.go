// Package scanner tokenizes PDF syntax: names, numbers, strings, dict and
// array delimiters, and bare keywords. It works over an in-memory byte
// slice; document loading reads the whole file once, so windowed reads buy
// nothing here.
package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/YanSamuray/cpf-censoring/recovery"
)

type TokenType int

const (
	TokenNumber TokenType = iota
	TokenName
	TokenString
	TokenDictOpen  // <<
	TokenDictClose // >>
	TokenArrayOpen
	TokenArrayClose
	TokenKeyword // obj, endobj, stream, R, true, false, null, ...
)

func (t TokenType) String() string {
	switch t {
	case TokenNumber:
		return "number"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenDictOpen:
		return "<<"
	case TokenDictClose:
		return ">>"
	case TokenArrayOpen:
		return "["
	case TokenArrayClose:
		return "]"
	case TokenKeyword:
		return "keyword"
	}
	return "unknown"
}

type Token struct {
	Type  TokenType
	Pos   int64
	Str   string // name value (no slash) or keyword text
	Int   int64
	Float float64
	IsInt bool
	Bytes []byte // string content, escapes resolved
	Hex   bool
}

type Config struct {
	MaxStringLength int
	MaxNameLength   int
	Recovery        recovery.Strategy
}

const (
	defaultMaxString = 64 * 1024 * 1024
	defaultMaxName   = 4096
)

type Scanner interface {
	Next() (Token, error)
	Position() int64
	SeekTo(offset int64) error
	// ReadStreamData consumes the EOL after a just-returned "stream"
	// keyword and returns the following length bytes. A negative length
	// scans forward to the nearest "endstream" instead.
	ReadStreamData(length int64) ([]byte, error)
}

var ErrUnexpectedEOF = errors.New("unexpected end of input")

type pdfScanner struct {
	data []byte
	pos  int64
	cfg  Config
}

func New(data []byte, cfg Config) Scanner {
	if cfg.MaxStringLength <= 0 {
		cfg.MaxStringLength = defaultMaxString
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = defaultMaxName
	}
	return &pdfScanner{data: data, cfg: cfg}
}

func (s *pdfScanner) Position() int64 { return s.pos }

// tolerate asks the recovery strategy whether a malformed construct may be
// glossed over. Without a strategy the scanner is strict.
func (s *pdfScanner) tolerate(err error) bool {
	if s.cfg.Recovery == nil {
		return false
	}
	loc := recovery.Location{ByteOffset: s.pos, Component: "scanner"}
	switch s.cfg.Recovery.OnError(context.Background(), err, loc) {
	case recovery.ActionFix, recovery.ActionWarn, recovery.ActionSkip:
		return true
	}
	return false
}

func (s *pdfScanner) SeekTo(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek to %d out of range [0,%d]", offset, len(s.data))
	}
	s.pos = offset
	return nil
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isWhitespace(c) && !isDelimiter(c) }

func (s *pdfScanner) skipWhitespaceAndComments() error {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return nil
	}
	return ErrUnexpectedEOF
}

func (s *pdfScanner) Next() (Token, error) {
	if err := s.skipWhitespaceAndComments(); err != nil {
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]

	switch {
	case c == '<':
		if s.pos+1 < int64(len(s.data)) && s.data[s.pos+1] == '<' {
			s.pos += 2
			return Token{Type: TokenDictOpen, Pos: start}, nil
		}
		return s.scanHexString(start)
	case c == '>':
		if s.pos+1 < int64(len(s.data)) && s.data[s.pos+1] == '>' {
			s.pos += 2
			return Token{Type: TokenDictClose, Pos: start}, nil
		}
		s.pos++
		err := fmt.Errorf("stray '>' at offset %d", start)
		if s.tolerate(err) {
			return s.Next()
		}
		return Token{}, err
	case c == '[':
		s.pos++
		return Token{Type: TokenArrayOpen, Pos: start}, nil
	case c == ']':
		s.pos++
		return Token{Type: TokenArrayClose, Pos: start}, nil
	case c == '(':
		return s.scanLiteralString(start)
	case c == '/':
		return s.scanName(start)
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return s.scanNumber(start)
	case isRegular(c):
		return s.scanKeyword(start)
	}
	s.pos++
	err := fmt.Errorf("unexpected byte 0x%02x at offset %d", c, start)
	if s.tolerate(err) {
		return s.Next()
	}
	return Token{}, err
}

func (s *pdfScanner) scanNumber(start int64) (Token, error) {
	i := s.pos
	n := int64(len(s.data))
	if i < n && (s.data[i] == '+' || s.data[i] == '-') {
		i++
	}
	digits := 0
	for i < n && s.data[i] >= '0' && s.data[i] <= '9' {
		i++
		digits++
	}
	isInt := true
	if i < n && s.data[i] == '.' {
		isInt = false
		i++
		for i < n && s.data[i] >= '0' && s.data[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		s.pos = i
		return Token{}, fmt.Errorf("malformed number at offset %d", start)
	}
	text := string(s.data[s.pos:i])
	s.pos = i
	tok := Token{Type: TokenNumber, Pos: start, IsInt: isInt}
	if isInt {
		v, err := parseInt(text)
		if err != nil {
			// Overflow: treat as float, readers do the same.
			tok.IsInt = false
			tok.Float = parseFloat(text)
			return tok, nil
		}
		tok.Int = v
	} else {
		tok.Float = parseFloat(text)
	}
	return tok, nil
}

func parseInt(text string) (int64, error) {
	var v int64
	neg := false
	i := 0
	if i < len(text) && (text[i] == '+' || text[i] == '-') {
		neg = text[i] == '-'
		i++
	}
	for ; i < len(text); i++ {
		d := int64(text[i] - '0')
		if v > (1<<62)/10 {
			return 0, errors.New("integer overflow")
		}
		v = v*10 + d
	}
	if neg {
		v = -v
	}
	return v, nil
}

func parseFloat(text string) float64 {
	var intPart, fracPart float64
	var fracDiv float64 = 1
	neg := false
	i := 0
	if i < len(text) && (text[i] == '+' || text[i] == '-') {
		neg = text[i] == '-'
		i++
	}
	for ; i < len(text) && text[i] != '.'; i++ {
		intPart = intPart*10 + float64(text[i]-'0')
	}
	if i < len(text) && text[i] == '.' {
		i++
		for ; i < len(text); i++ {
			fracPart = fracPart*10 + float64(text[i]-'0')
			fracDiv *= 10
		}
	}
	v := intPart + fracPart/fracDiv
	if neg {
		v = -v
	}
	return v
}

func (s *pdfScanner) scanName(start int64) (Token, error) {
	s.pos++ // consume '/'
	var out []byte
	n := int64(len(s.data))
	for s.pos < n {
		c := s.data[s.pos]
		if !isRegular(c) {
			break
		}
		if c == '#' && s.pos+2 < n {
			hi, ok1 := hexVal(s.data[s.pos+1])
			lo, ok2 := hexVal(s.data[s.pos+2])
			if ok1 && ok2 {
				out = append(out, hi<<4|lo)
				s.pos += 3
				continue
			}
		}
		out = append(out, c)
		s.pos++
		if len(out) > s.cfg.MaxNameLength {
			return Token{}, fmt.Errorf("name exceeds %d bytes at offset %d", s.cfg.MaxNameLength, start)
		}
	}
	return Token{Type: TokenName, Pos: start, Str: string(out)}, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (s *pdfScanner) scanLiteralString(start int64) (Token, error) {
	s.pos++ // consume '('
	var out []byte
	depth := 1
	n := int64(len(s.data))
	for s.pos < n {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= n {
				return Token{}, ErrUnexpectedEOF
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				// line continuation, swallow optional \n
				if s.pos < n && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && s.pos < n; k++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					// Unknown escape: the backslash is dropped.
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Pos: start, Bytes: out}, nil
			}
			out = append(out, c)
		case '\r':
			// Bare EOL inside a string reads as \n.
			if s.pos < n && s.data[s.pos] == '\n' {
				s.pos++
			}
			out = append(out, '\n')
		default:
			out = append(out, c)
		}
		if len(out) > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("string exceeds %d bytes at offset %d", s.cfg.MaxStringLength, start)
		}
	}
	return Token{}, ErrUnexpectedEOF
}

func (s *pdfScanner) scanHexString(start int64) (Token, error) {
	s.pos++ // consume '<'
	var out []byte
	var hi byte
	havePair := false
	n := int64(len(s.data))
	for s.pos < n {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if havePair {
				out = append(out, hi<<4)
			}
			return Token{Type: TokenString, Pos: start, Bytes: out, Hex: true}, nil
		}
		if isWhitespace(c) {
			continue
		}
		v, ok := hexVal(c)
		if !ok {
			err := fmt.Errorf("invalid hex digit %q at offset %d", c, s.pos-1)
			if s.tolerate(err) {
				continue
			}
			return Token{}, err
		}
		if havePair {
			out = append(out, hi<<4|v)
			havePair = false
		} else {
			hi = v
			havePair = true
		}
		if len(out) > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("string exceeds %d bytes at offset %d", s.cfg.MaxStringLength, start)
		}
	}
	return Token{}, ErrUnexpectedEOF
}

func (s *pdfScanner) scanKeyword(start int64) (Token, error) {
	i := s.pos
	n := int64(len(s.data))
	for i < n && isRegular(s.data[i]) {
		i++
	}
	word := string(s.data[s.pos:i])
	s.pos = i
	return Token{Type: TokenKeyword, Pos: start, Str: word}, nil
}

var endstreamMarker = []byte("endstream")

func (s *pdfScanner) ReadStreamData(length int64) ([]byte, error) {
	// The stream keyword is followed by CRLF or LF (a lone CR is
	// tolerated for damaged files).
	n := int64(len(s.data))
	if s.pos < n && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < n && s.data[s.pos] == '\n' {
		s.pos++
	}
	begin := s.pos
	if length >= 0 && begin+length <= n {
		data := s.data[begin : begin+length]
		after := begin + length
		// Trust /Length only if endstream actually follows.
		probe := after
		for probe < n && isWhitespace(s.data[probe]) {
			probe++
		}
		if hasPrefixAt(s.data, probe, endstreamMarker) {
			s.pos = probe + int64(len(endstreamMarker))
			return data, nil
		}
	}
	// Recovery path: scan for the closing keyword.
	idx := indexFrom(s.data, begin, endstreamMarker)
	if idx < 0 {
		return nil, errors.New("endstream not found")
	}
	end := idx
	for end > begin && (s.data[end-1] == '\n' || s.data[end-1] == '\r') {
		end--
	}
	s.pos = idx + int64(len(endstreamMarker))
	return s.data[begin:end], nil
}

func hasPrefixAt(data []byte, pos int64, marker []byte) bool {
	if pos+int64(len(marker)) > int64(len(data)) {
		return false
	}
	for i := range marker {
		if data[pos+int64(i)] != marker[i] {
			return false
		}
	}
	return true
}

func indexFrom(data []byte, from int64, marker []byte) int64 {
	for i := from; i+int64(len(marker)) <= int64(len(data)); i++ {
		if hasPrefixAt(data, i, marker) {
			return i
		}
	}
	return -1
}
