// Package xref locates objects in a PDF: classic cross-reference tables,
// cross-reference streams, hybrid files, and a repair scan for files whose
// tables are damaged.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/YanSamuray/cpf-censoring/filters"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
	"github.com/YanSamuray/cpf-censoring/recovery"
	"github.com/YanSamuray/cpf-censoring/scanner"
)

// Table holds object locations. An object lives either at a byte offset or
// inside an object stream.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	ObjStream(objNum int) (streamNum, idx int, ok bool)
	Objects() []int
	Type() string
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
	Trailer() raw.Dictionary
}

type ResolverConfig struct {
	MaxSections int
	Recovery    recovery.Strategy
	Limits      filters.Limits
}

const defaultMaxSections = 64

// NewResolver returns a resolver handling tables, streams and hybrids.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxSections <= 0 {
		cfg.MaxSections = defaultMaxSections
	}
	return &resolver{cfg: cfg}
}

type entry struct {
	offset int64
	gen    int
	inStm  bool
	stmNum int
	stmIdx int
	free   bool
}

type table struct {
	entries map[int]entry
	kind    string
}

func newTable(kind string) *table {
	return &table{entries: make(map[int]entry), kind: kind}
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.free || e.inStm {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || !e.inStm {
		return 0, 0, false
	}
	return e.stmNum, e.stmIdx, true
}

func (t *table) Objects() []int {
	nums := make([]int, 0, len(t.entries))
	for n, e := range t.entries {
		if e.free {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (t *table) Type() string { return t.kind }

// add records an entry unless a newer section already claimed the number.
// Sections are visited newest first, so first write wins.
func (t *table) add(num int, e entry) {
	if _, exists := t.entries[num]; exists {
		return
	}
	t.entries[num] = e
}

type resolver struct {
	cfg     ResolverConfig
	trailer raw.Dictionary
}

func (r *resolver) Trailer() raw.Dictionary { return r.trailer }

func (r *resolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	offset, err := findStartXref(data)
	if err != nil {
		return r.tryRepair(ctx, data, err)
	}

	tbl := newTable("table")
	seen := make(map[int64]bool)
	sections := 0
	for offset >= 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[offset] {
			return nil, fmt.Errorf("xref section cycle at offset %d", offset)
		}
		seen[offset] = true
		sections++
		if sections > r.cfg.MaxSections {
			return nil, fmt.Errorf("more than %d chained xref sections", r.cfg.MaxSections)
		}

		next, err := r.readSection(ctx, data, offset, tbl)
		if err != nil {
			return r.tryRepair(ctx, data, err)
		}
		offset = next
	}
	if r.trailer == nil {
		return r.tryRepair(ctx, data, errors.New("no trailer found"))
	}
	return tbl, nil
}

func (r *resolver) tryRepair(ctx context.Context, data []byte, cause error) (Table, error) {
	if r.cfg.Recovery == nil {
		return nil, cause
	}
	loc := recovery.Location{Component: "xref"}
	switch r.cfg.Recovery.OnError(ctx, cause, loc) {
	case recovery.ActionFix, recovery.ActionWarn:
		tbl, trailer, err := Rebuild(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%w (repair failed: %v)", cause, err)
		}
		if r.trailer == nil {
			r.trailer = trailer
		}
		if r.trailer == nil {
			return nil, fmt.Errorf("%w (repair found no trailer)", cause)
		}
		return tbl, nil
	}
	return nil, cause
}

// readSection parses one xref section (classic or stream) at offset and
// returns the /Prev offset, or -1 when the chain ends.
func (r *resolver) readSection(ctx context.Context, data []byte, offset int64, tbl *table) (int64, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return -1, fmt.Errorf("xref offset %d out of range", offset)
	}
	s := scanner.New(data, scanner.Config{Recovery: r.cfg.Recovery})
	if err := s.SeekTo(offset); err != nil {
		return -1, err
	}
	tok, err := s.Next()
	if err != nil {
		return -1, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return r.readClassicSection(ctx, data, s, tbl)
	}
	// Otherwise this must be a cross-reference stream object.
	return r.readStreamSection(ctx, data, offset, tbl)
}

func (r *resolver) readClassicSection(ctx context.Context, data []byte, s scanner.Scanner, tbl *table) (int64, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return -1, fmt.Errorf("classic xref: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return -1, fmt.Errorf("classic xref: unexpected token at offset %d", tok.Pos)
		}
		start := int(tok.Int)
		countTok, err := s.Next()
		if err != nil {
			return -1, err
		}
		if countTok.Type != scanner.TokenNumber || !countTok.IsInt {
			return -1, fmt.Errorf("classic xref: bad subsection header at offset %d", countTok.Pos)
		}
		count := int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err := s.Next()
			if err != nil {
				return -1, err
			}
			genTok, err := s.Next()
			if err != nil {
				return -1, err
			}
			kindTok, err := s.Next()
			if err != nil {
				return -1, err
			}
			if offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || kindTok.Type != scanner.TokenKeyword {
				return -1, fmt.Errorf("classic xref: malformed entry %d in subsection at %d", i, start)
			}
			num := start + i
			switch kindTok.Str {
			case "n":
				tbl.add(num, entry{offset: offTok.Int, gen: int(genTok.Int)})
			case "f":
				tbl.add(num, entry{free: true})
			default:
				return -1, fmt.Errorf("classic xref: entry type %q", kindTok.Str)
			}
		}
	}

	trailerObj, err := raw.ParseObject(s)
	if err != nil {
		return -1, fmt.Errorf("trailer: %w", err)
	}
	trailer, ok := trailerObj.(*raw.DictObj)
	if !ok {
		return -1, errors.New("trailer is not a dictionary")
	}
	if r.trailer == nil {
		r.trailer = trailer
	}

	// Hybrid files keep stream-held entries behind /XRefStm.
	if stm, ok := raw.DictInt(trailer, "XRefStm"); ok {
		if _, err := r.readStreamSection(ctx, data, stm, tbl); err != nil {
			return -1, fmt.Errorf("hybrid xref stream: %w", err)
		}
	}

	if prev, ok := raw.DictInt(trailer, "Prev"); ok {
		return prev, nil
	}
	return -1, nil
}

func (r *resolver) readStreamSection(ctx context.Context, data []byte, offset int64, tbl *table) (int64, error) {
	_, _, obj, err := raw.ReadIndirectAt(data, offset, scanner.Config{Recovery: r.cfg.Recovery})
	if err != nil {
		return -1, fmt.Errorf("xref stream object: %w", err)
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return -1, fmt.Errorf("object at %d is not a stream", offset)
	}
	dict := stm.Dict
	if typ, _ := raw.DictName(dict, "Type"); typ != "XRef" {
		return -1, fmt.Errorf("stream at %d is not an XRef stream", offset)
	}
	tbl.kind = "stream"

	size, ok := raw.DictInt(dict, "Size")
	if !ok {
		return -1, errors.New("xref stream missing /Size")
	}

	widths, err := intArray(dict, "W")
	if err != nil || len(widths) < 3 {
		return -1, errors.New("xref stream missing /W")
	}

	index, err := intArray(dict, "Index")
	if err != nil || len(index) == 0 {
		index = []int64{0, size}
	}
	if len(index)%2 != 0 {
		return -1, errors.New("xref stream /Index has odd length")
	}

	names, params := filters.ForStream(dict)
	decoded := stm.Data
	if len(names) > 0 {
		decoded, err = filters.Default(r.cfg.Limits).Decode(ctx, stm.Data, names, params)
		if err != nil {
			return -1, fmt.Errorf("decode xref stream: %w", err)
		}
	}

	w0, w1, w2 := int(widths[0]), int(widths[1]), int(widths[2])
	rowLen := w0 + w1 + w2
	if rowLen == 0 {
		return -1, errors.New("xref stream /W is all zero")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first := int(index[i])
		count := int(index[i+1])
		for k := 0; k < count; k++ {
			if pos+rowLen > len(decoded) {
				return -1, errors.New("xref stream data truncated")
			}
			f0 := readField(decoded[pos:pos+w0], 1) // type defaults to 1
			f1 := readField(decoded[pos+w0:pos+w0+w1], 0)
			f2 := readField(decoded[pos+w0+w1:pos+rowLen], 0)
			pos += rowLen

			num := first + k
			switch f0 {
			case 0:
				tbl.add(num, entry{free: true})
			case 1:
				tbl.add(num, entry{offset: f1, gen: int(f2)})
			case 2:
				tbl.add(num, entry{inStm: true, stmNum: int(f1), stmIdx: int(f2)})
			}
		}
	}

	if r.trailer == nil {
		r.trailer = dict
	}
	if prev, ok := raw.DictInt(dict, "Prev"); ok {
		return prev, nil
	}
	return -1, nil
}

// readField decodes a big-endian field; a zero-width field yields def.
func readField(b []byte, def int64) int64 {
	if len(b) == 0 {
		return def
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intArray(d raw.Dictionary, key string) ([]int64, error) {
	v, ok := d.Get(raw.NameLiteral(key))
	if !ok {
		return nil, fmt.Errorf("missing /%s", key)
	}
	arr, ok := v.(*raw.ArrayObj)
	if !ok {
		return nil, fmt.Errorf("/%s is not an array", key)
	}
	out := make([]int64, 0, len(arr.Items))
	for _, item := range arr.Items {
		n, ok := item.(raw.NumberObj)
		if !ok {
			return nil, fmt.Errorf("/%s holds a non-number", key)
		}
		out = append(out, n.Int())
	}
	return out, nil
}

var startxrefMarker = []byte("startxref")

// findStartXref locates the last startxref near the end of the file.
func findStartXref(data []byte) (int64, error) {
	window := data
	const tail = 2048
	if len(window) > tail {
		window = window[len(window)-tail:]
	}
	idx := bytes.LastIndex(window, startxrefMarker)
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	abs := int64(len(data) - len(window) + idx)
	s := scanner.New(data, scanner.Config{})
	if err := s.SeekTo(abs + int64(len(startxrefMarker))); err != nil {
		return 0, err
	}
	tok, err := s.Next()
	if err != nil {
		return 0, fmt.Errorf("startxref value: %w", err)
	}
	if tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, errors.New("startxref is not followed by an integer")
	}
	if tok.Int < 0 || tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("startxref offset %d out of range", tok.Int)
	}
	return tok.Int, nil
}
