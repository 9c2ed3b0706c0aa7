package raw

import (
	"errors"
	"fmt"

	"github.com/YanSamuray/cpf-censoring/scanner"
)

const maxComposeDepth = 64

// ParseObject composes the next complete object from the token stream.
// Indirect references are recognized by "num gen R" lookahead; a dictionary
// followed by the stream keyword becomes a stream object with its raw,
// still-encoded data attached.
func ParseObject(s scanner.Scanner) (Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return composeFromToken(s, tok, 0)
}

func composeFromToken(s scanner.Scanner, tok scanner.Token, depth int) (Object, error) {
	if depth > maxComposeDepth {
		return nil, errors.New("object nesting too deep")
	}
	switch tok.Type {
	case scanner.TokenNumber:
		if !tok.IsInt {
			return NumberFloat(tok.Float), nil
		}
		save := s.Position()
		genTok, err := s.Next()
		if err == nil && genTok.Type == scanner.TokenNumber && genTok.IsInt {
			rTok, err := s.Next()
			if err == nil && rTok.Type == scanner.TokenKeyword && rTok.Str == "R" {
				return Ref(int(tok.Int), int(genTok.Int)), nil
			}
		}
		if err := s.SeekTo(save); err != nil {
			return nil, err
		}
		return NumberInt(tok.Int), nil
	case scanner.TokenName:
		return NameLiteral(tok.Str), nil
	case scanner.TokenString:
		if tok.Hex {
			return HexStr(tok.Bytes), nil
		}
		return Str(tok.Bytes), nil
	case scanner.TokenArrayOpen:
		arr := NewArray()
		for {
			t, err := s.Next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenArrayClose {
				return arr, nil
			}
			item, err := composeFromToken(s, t, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case scanner.TokenDictOpen:
		return composeDict(s, depth)
	case scanner.TokenKeyword:
		switch tok.Str {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return NullObj{}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", tok.Str, tok.Pos)
	}
	return nil, fmt.Errorf("unexpected token %v at offset %d", tok.Type, tok.Pos)
}

func composeDict(s scanner.Scanner, depth int) (Object, error) {
	dict := Dict()
	for {
		t, err := s.Next()
		if err != nil {
			return nil, err
		}
		if t.Type == scanner.TokenDictClose {
			break
		}
		if t.Type != scanner.TokenName {
			return nil, fmt.Errorf("dictionary key at offset %d is not a name", t.Pos)
		}
		vTok, err := s.Next()
		if err != nil {
			return nil, err
		}
		val, err := composeFromToken(s, vTok, depth+1)
		if err != nil {
			return nil, err
		}
		dict.Set(NameLiteral(t.Str), val)
	}

	// A stream keyword directly after the dictionary turns it into a
	// stream object.
	save := s.Position()
	t, err := s.Next()
	if err == nil && t.Type == scanner.TokenKeyword && t.Str == "stream" {
		length := int64(-1)
		if n, ok := DictInt(dict, "Length"); ok {
			length = n
		}
		data, err := s.ReadStreamData(length)
		if err != nil {
			return nil, fmt.Errorf("stream data: %w", err)
		}
		return NewStream(dict, data), nil
	}
	if err := s.SeekTo(save); err != nil {
		return nil, err
	}
	return dict, nil
}

// ReadIndirectAt parses the "num gen obj ... endobj" wrapper at a byte
// offset and returns the contained object.
func ReadIndirectAt(data []byte, offset int64, cfg scanner.Config) (num, gen int, obj Object, err error) {
	s := scanner.New(data, cfg)
	if err := s.SeekTo(offset); err != nil {
		return 0, 0, nil, err
	}
	numTok, err := s.Next()
	if err != nil {
		return 0, 0, nil, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt {
		return 0, 0, nil, fmt.Errorf("no object header at offset %d", offset)
	}
	genTok, err := s.Next()
	if err != nil {
		return 0, 0, nil, err
	}
	if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return 0, 0, nil, fmt.Errorf("bad generation in object header at offset %d", offset)
	}
	kwTok, err := s.Next()
	if err != nil {
		return 0, 0, nil, err
	}
	if kwTok.Type != scanner.TokenKeyword || kwTok.Str != "obj" {
		return 0, 0, nil, fmt.Errorf("missing obj keyword at offset %d", offset)
	}
	obj, err = ParseObject(s)
	if err != nil {
		return 0, 0, nil, err
	}
	// Consume endobj when present; damaged files may omit it.
	save := s.Position()
	if t, err := s.Next(); err != nil || t.Type != scanner.TokenKeyword || t.Str != "endobj" {
		s.SeekTo(save)
	}
	return int(numTok.Int), int(genTok.Int), obj, nil
}
