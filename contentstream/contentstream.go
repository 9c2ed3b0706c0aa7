// Package contentstream lexes decoded page content into operations and
// serializes operations back to bytes. Operations keep their operands as
// typed values so callers can rewrite text-showing operands and re-emit the
// stream.
package contentstream

import (
	"github.com/YanSamuray/cpf-censoring/recovery"
	"github.com/YanSamuray/cpf-censoring/scanner"
)

// Operation is one PDF operator with the operands that preceded it.
type Operation struct {
	Operator string
	Operands []Operand
}

// Operand is a type-safe operand value.
type Operand interface {
	operand()
	Type() string
}

type NumberOperand struct{ Value float64 }

func (NumberOperand) operand()     {}
func (NumberOperand) Type() string { return "number" }

type NameOperand struct{ Value string }

func (NameOperand) operand()     {}
func (NameOperand) Type() string { return "name" }

type StringOperand struct{ Value []byte }

func (StringOperand) operand()     {}
func (StringOperand) Type() string { return "string" }

type ArrayOperand struct{ Values []Operand }

func (ArrayOperand) operand()     {}
func (ArrayOperand) Type() string { return "array" }

type DictOperand struct{ Values map[string]Operand }

func (DictOperand) operand()     {}
func (DictOperand) Type() string { return "dict" }

type BoolOperand struct{ Value bool }

func (BoolOperand) operand()     {}
func (BoolOperand) Type() string { return "boolean" }

type NullOperand struct{}

func (NullOperand) operand()     {}
func (NullOperand) Type() string { return "null" }

// InlineImageOperand holds a BI..ID..EI image: its parameter dictionary and
// the raw, still-encoded data bytes.
type InlineImageOperand struct {
	Image DictOperand
	Data  []byte
}

func (InlineImageOperand) operand()     {}
func (InlineImageOperand) Type() string { return "inline_image" }

// skipFaults tolerates malformed bytes inside content streams; viewers
// render what they can, so the lexer does too.
type skipFaults struct{}

func (skipFaults) OnError(ctx recovery.Context, err error, loc recovery.Location) recovery.Action {
	return recovery.ActionSkip
}

// Lex tokenizes a decoded content stream into operations. Lexing is
// tolerant: an unparseable tail ends the scan and dangling operands are
// dropped. Inline images are captured as a single BI operation.
func Lex(data []byte) []Operation {
	s := scanner.New(data, scanner.Config{Recovery: skipFaults{}})
	var ops []Operation
	var stack []Operand
	for {
		tok, err := s.Next()
		if err != nil {
			break
		}
		if tok.Type == scanner.TokenKeyword && !isValueKeyword(tok.Str) {
			if tok.Str == "BI" {
				img, ok := lexInlineImage(s, data)
				if !ok {
					break
				}
				ops = append(ops, Operation{Operator: "BI", Operands: []Operand{img}})
				stack = nil
				continue
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: stack})
			stack = nil
			continue
		}
		opnd, ok, err := operandFrom(s, tok)
		if err != nil {
			break
		}
		if ok {
			stack = append(stack, opnd)
		}
	}
	return ops
}

func isValueKeyword(kw string) bool {
	return kw == "true" || kw == "false" || kw == "null"
}

// operandFrom converts a token into an operand, recursing into arrays and
// dictionaries. ok is false for tokens that carry no value (unbalanced
// closers, unknown keywords).
func operandFrom(s scanner.Scanner, tok scanner.Token) (Operand, bool, error) {
	switch tok.Type {
	case scanner.TokenNumber:
		if tok.IsInt {
			return NumberOperand{Value: float64(tok.Int)}, true, nil
		}
		return NumberOperand{Value: tok.Float}, true, nil
	case scanner.TokenName:
		return NameOperand{Value: tok.Str}, true, nil
	case scanner.TokenString:
		return StringOperand{Value: tok.Bytes}, true, nil
	case scanner.TokenArrayOpen:
		arr := ArrayOperand{}
		for {
			t, err := s.Next()
			if err != nil {
				return nil, false, err
			}
			if t.Type == scanner.TokenArrayClose {
				return arr, true, nil
			}
			v, ok, err := operandFrom(s, t)
			if err != nil {
				return nil, false, err
			}
			if ok {
				arr.Values = append(arr.Values, v)
			}
		}
	case scanner.TokenDictOpen:
		d := DictOperand{Values: make(map[string]Operand)}
		for {
			t, err := s.Next()
			if err != nil {
				return nil, false, err
			}
			if t.Type == scanner.TokenDictClose {
				return d, true, nil
			}
			if t.Type != scanner.TokenName {
				continue
			}
			vt, err := s.Next()
			if err != nil {
				return nil, false, err
			}
			v, ok, err := operandFrom(s, vt)
			if err != nil {
				return nil, false, err
			}
			if ok {
				d.Values[t.Str] = v
			}
		}
	case scanner.TokenKeyword:
		switch tok.Str {
		case "true":
			return BoolOperand{Value: true}, true, nil
		case "false":
			return BoolOperand{Value: false}, true, nil
		case "null":
			return NullOperand{}, true, nil
		}
	}
	return nil, false, nil
}

// lexInlineImage reads the parameter dictionary up to ID, then captures the
// data bytes. Image data carries no declared length here, so the end is
// found by scanning for a whitespace-delimited EI.
func lexInlineImage(s scanner.Scanner, data []byte) (InlineImageOperand, bool) {
	img := InlineImageOperand{Image: DictOperand{Values: make(map[string]Operand)}}
	for {
		tok, err := s.Next()
		if err != nil {
			return img, false
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "ID" {
			break
		}
		if tok.Type != scanner.TokenName {
			continue
		}
		vt, err := s.Next()
		if err != nil {
			return img, false
		}
		v, ok, err := operandFrom(s, vt)
		if err != nil {
			return img, false
		}
		if ok {
			img.Image.Values[tok.Str] = v
		}
	}
	start := s.Position()
	if start < int64(len(data)) && isWhite(data[start]) {
		start++
	}
	dataEnd, resume := findEI(data, start)
	if dataEnd < 0 {
		return img, false
	}
	img.Data = data[start:dataEnd]
	if err := s.SeekTo(resume); err != nil {
		return img, false
	}
	return img, true
}

// findEI locates EI preceded by whitespace and followed by whitespace,
// a delimiter or end of data. Returns the end of the image data and the
// position right after EI.
func findEI(data []byte, from int64) (dataEnd, resume int64) {
	for i := from; i+1 < int64(len(data)); i++ {
		if data[i] != 'E' || data[i+1] != 'I' {
			continue
		}
		if i == from {
			return from, i + 2
		}
		if !isWhite(data[i-1]) {
			continue
		}
		if i+2 < int64(len(data)) && !isWhite(data[i+2]) && !isDelim(data[i+2]) {
			continue
		}
		return i - 1, i + 2
	}
	return -1, -1
}

func isWhite(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
