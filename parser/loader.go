package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/YanSamuray/cpf-censoring/filters"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
	"github.com/YanSamuray/cpf-censoring/recovery"
	"github.com/YanSamuray/cpf-censoring/scanner"
	"github.com/YanSamuray/cpf-censoring/xref"
)

type objectLoader struct {
	data  []byte
	table xref.Table
	cfg   Config
}

func newObjectLoader(data []byte, table xref.Table, cfg Config) *objectLoader {
	return &objectLoader{data: data, table: table, cfg: cfg}
}

// loadAll populates doc.Objects from the xref table: directly stored objects
// first, then members of object streams.
func (o *objectLoader) loadAll(ctx context.Context, doc *raw.Document) error {
	var inStreams []int
	for _, num := range o.table.Objects() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if num == 0 {
			continue
		}
		if offset, gen, found := o.table.Lookup(num); found {
			obj, err := o.loadAt(num, gen, offset)
			if err != nil {
				if o.tolerate(ctx, err, num, gen) {
					continue
				}
				return fmt.Errorf("load object %d: %w", num, err)
			}
			doc.Objects[raw.ObjectRef{Num: num, Gen: gen}] = obj
			continue
		}
		if _, _, ok := o.table.ObjStream(num); ok {
			inStreams = append(inStreams, num)
		}
	}

	if err := o.fixStreamLengths(ctx, doc); err != nil {
		return err
	}
	return o.expandObjectStreams(ctx, doc, inStreams)
}

func (o *objectLoader) scannerConfig() scanner.Config {
	return scanner.Config{Recovery: o.cfg.Recovery}
}

func (o *objectLoader) loadAt(num, gen int, offset int64) (raw.Object, error) {
	gotNum, gotGen, obj, err := raw.ReadIndirectAt(o.data, offset, o.scannerConfig())
	if err != nil {
		return nil, err
	}
	if gotNum != num || gotGen != gen {
		return nil, fmt.Errorf("header says %d %d at offset %d, xref says %d %d",
			gotNum, gotGen, offset, num, gen)
	}
	return obj, nil
}

func (o *objectLoader) tolerate(ctx context.Context, err error, num, gen int) bool {
	if o.cfg.Recovery == nil {
		return false
	}
	loc := recovery.Location{ObjectNum: num, ObjectGen: gen, Component: "parser"}
	switch o.cfg.Recovery.OnError(ctx, err, loc) {
	case recovery.ActionFix, recovery.ActionWarn, recovery.ActionSkip:
		return true
	}
	return false
}

// fixStreamLengths re-reads stream bodies whose /Length was an indirect
// reference. The first pass scans to the nearest endstream keyword; once the
// referenced number is loaded the exact byte count is available, which
// matters when the body itself contains the endstream byte sequence.
func (o *objectLoader) fixStreamLengths(ctx context.Context, doc *raw.Document) error {
	for ref, obj := range doc.Objects {
		stm, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		val, ok := stm.Dict.Get(raw.NameLiteral("Length"))
		if !ok {
			continue
		}
		if _, direct := val.(raw.NumberObj); direct {
			continue
		}
		num, ok := doc.Resolve(val).(raw.NumberObj)
		if !ok {
			continue
		}
		want := num.Int()
		if want < 0 || want == int64(len(stm.Data)) {
			continue
		}
		offset, _, found := o.table.Lookup(ref.Num)
		if !found {
			continue
		}
		data, err := o.rereadStream(offset, want)
		if err != nil {
			if o.tolerate(ctx, err, ref.Num, ref.Gen) {
				continue
			}
			return fmt.Errorf("stream %d: reread with length %d: %w", ref.Num, want, err)
		}
		stm.Data = data
	}
	return nil
}

// rereadStream skips tokens up to the stream keyword at the object starting
// at offset and reads length bytes of body.
func (o *objectLoader) rereadStream(offset, length int64) ([]byte, error) {
	s := scanner.New(o.data, o.scannerConfig())
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type != scanner.TokenKeyword {
			continue
		}
		switch tok.Str {
		case "stream":
			return s.ReadStreamData(length)
		case "endobj":
			return nil, errors.New("no stream keyword before endobj")
		}
	}
}

// expandObjectStreams parses every /ObjStm container that holds a live
// object and lifts the members into doc.Objects. Members always carry
// generation zero.
func (o *objectLoader) expandObjectStreams(ctx context.Context, doc *raw.Document, nums []int) error {
	if len(nums) == 0 {
		return nil
	}
	expanded := make(map[int]map[int]raw.Object)
	for _, num := range nums {
		if err := ctx.Err(); err != nil {
			return err
		}
		stmNum, _, _ := o.table.ObjStream(num)
		objs, seen := expanded[stmNum]
		if !seen {
			var err error
			objs, err = o.parseObjectStream(ctx, doc, stmNum)
			if err != nil {
				if !o.tolerate(ctx, err, stmNum, 0) {
					return fmt.Errorf("object stream %d: %w", stmNum, err)
				}
				objs = nil
			}
			expanded[stmNum] = objs
		}
		if objs == nil {
			continue
		}
		obj, ok := objs[num]
		if !ok {
			err := fmt.Errorf("object %d missing from object stream %d", num, stmNum)
			if o.tolerate(ctx, err, num, 0) {
				continue
			}
			return err
		}
		doc.Objects[raw.ObjectRef{Num: num, Gen: 0}] = obj
	}
	return nil
}

// parseObjectStream decodes an /ObjStm container and parses all members.
func (o *objectLoader) parseObjectStream(ctx context.Context, doc *raw.Document, stmNum int) (map[int]raw.Object, error) {
	_, gen, found := o.table.Lookup(stmNum)
	if !found {
		return nil, errors.New("container not in xref")
	}
	obj, ok := doc.Objects[raw.ObjectRef{Num: stmNum, Gen: gen}]
	if !ok {
		return nil, errors.New("container not loaded")
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("container is not a stream")
	}
	if typ, _ := raw.DictName(stm.Dict, "Type"); typ != "ObjStm" {
		return nil, fmt.Errorf("container type %q", typ)
	}
	n, _ := raw.DictInt(stm.Dict, "N")
	first, _ := raw.DictInt(stm.Dict, "First")
	if n <= 0 || first <= 0 {
		return nil, errors.New("container missing /N or /First")
	}

	data := stm.Data
	names, params := filters.ForStream(stm.Dict)
	if len(names) > 0 {
		decoded, err := filters.Default(o.cfg.Limits).Decode(ctx, data, names, params)
		if err != nil {
			return nil, err
		}
		data = decoded
	}
	if first > int64(len(data)) {
		return nil, errors.New("/First beyond stream data")
	}

	pairs, err := readPairs(data[:first], int(n))
	if err != nil {
		return nil, err
	}
	body := data[first:]
	objs := make(map[int]raw.Object, n)
	for i := 0; i < int(n); i++ {
		num := pairs[2*i]
		off := pairs[2*i+1]
		if off < 0 || off > len(body) {
			return nil, fmt.Errorf("member %d offset %d out of range", num, off)
		}
		s := scanner.New(body[off:], o.scannerConfig())
		member, err := raw.ParseObject(s)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", num, err)
		}
		objs[num] = member
	}
	return objs, nil
}

// readPairs reads the 2n integers heading an object stream: alternating
// object numbers and body offsets.
func readPairs(header []byte, n int) ([]int, error) {
	s := scanner.New(header, scanner.Config{})
	pairs := make([]int, 0, 2*n)
	for len(pairs) < 2*n {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("object stream header: %w", err)
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}
		pairs = append(pairs, int(tok.Int))
	}
	return pairs, nil
}
