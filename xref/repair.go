package xref

import (
	"context"
	"errors"

	"github.com/YanSamuray/cpf-censoring/ir/raw"
	"github.com/YanSamuray/cpf-censoring/scanner"
)

// Rebuild reconstructs a table by scanning the whole file for
// "num gen obj" headers and trailer dictionaries. Later definitions win,
// matching how readers treat appended objects.
func Rebuild(ctx context.Context, data []byte) (Table, raw.Dictionary, error) {
	s := scanner.New(data, scanner.Config{})
	tbl := newTable("repair")
	var trailer raw.Dictionary

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		tok, err := s.Next()
		if err != nil {
			break
		}
		switch {
		case tok.Type == scanner.TokenNumber && tok.IsInt:
			genTok, err := s.Next()
			if err != nil {
				break
			}
			if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
				// genTok may itself start an object header.
				if err := s.SeekTo(genTok.Pos); err != nil {
					return nil, nil, err
				}
				continue
			}
			kwTok, err := s.Next()
			if err != nil {
				break
			}
			if kwTok.Type == scanner.TokenKeyword && kwTok.Str == "obj" {
				// Later definition replaces earlier ones.
				tbl.entries[int(tok.Int)] = entry{offset: tok.Pos, gen: int(genTok.Int)}
				skipObjectBody(s)
				continue
			}
			if err := s.SeekTo(genTok.Pos); err != nil {
				return nil, nil, err
			}
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			obj, err := raw.ParseObject(s)
			if err != nil {
				continue
			}
			if d, ok := obj.(*raw.DictObj); ok {
				trailer = d
			}
		}
	}

	if len(tbl.entries) == 0 {
		return nil, nil, errors.New("no object headers found")
	}
	if trailer == nil {
		trailer = findRootFallback(tbl, data)
	}
	return tbl, trailer, nil
}

// skipObjectBody advances past the object so header scanning does not
// misread body integers as new headers. Stream bodies are the main hazard.
func skipObjectBody(s scanner.Scanner) {
	obj, err := raw.ParseObject(s)
	if err != nil {
		return
	}
	_ = obj
	// Consume a trailing endobj when present.
	save := s.Position()
	tok, err := s.Next()
	if err != nil {
		return
	}
	if tok.Type != scanner.TokenKeyword || tok.Str != "endobj" {
		s.SeekTo(save)
	}
}

// findRootFallback synthesizes a trailer for files whose trailer was lost:
// it looks for an object whose dictionary declares /Type /Catalog.
func findRootFallback(tbl *table, data []byte) raw.Dictionary {
	for num, e := range tbl.entries {
		if e.free || e.inStm {
			continue
		}
		_, _, obj, err := raw.ReadIndirectAt(data, e.offset, scanner.Config{})
		if err != nil {
			continue
		}
		d, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if typ, _ := raw.DictName(d, "Type"); typ == "Catalog" {
			trailer := raw.Dict()
			trailer.Set(raw.NameLiteral("Root"), raw.Ref(num, e.gen))
			trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(len(tbl.entries)+1)))
			return trailer
		}
	}
	return nil
}
