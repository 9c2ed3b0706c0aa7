// Package writer serializes a document back into a complete PDF file:
// header, every object in ascending number order, a classic cross
// reference table and a trailer. It always performs a full rewrite.
// An incremental update would append to the original file and leave the
// unscrubbed streams recoverable, which defeats text removal.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/YanSamuray/cpf-censoring/contentstream"
	"github.com/YanSamuray/cpf-censoring/filters"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
	"github.com/YanSamuray/cpf-censoring/ir/semantic"
	"github.com/YanSamuray/cpf-censoring/observability"
)

// Config controls serialization.
type Config struct {
	Logger observability.Logger
}

// DocumentWriter renders a semantic.Document as a single-revision PDF.
type DocumentWriter struct {
	cfg Config
}

func NewDocumentWriter(cfg Config) *DocumentWriter {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &DocumentWriter{cfg: cfg}
}

// Write serializes doc to out. Dirty content streams are re-serialized
// from their operations and Flate-encoded, untouched streams are copied
// through with their original encoded bytes. Object stream and xref
// stream containers are dropped (their members were lifted out at load
// time) and their numbers become free entries in the table. The output
// depends only on the document, so writing twice yields identical bytes.
func (w *DocumentWriter) Write(ctx context.Context, out io.Writer, doc *semantic.Document) error {
	if doc == nil || doc.Raw == nil {
		return errors.New("nothing to write")
	}
	if doc.CatalogRef == (raw.ObjectRef{}) {
		return errors.New("document has no catalog")
	}

	objects, err := w.collect(doc)
	if err != nil {
		return err
	}

	ordered := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Num != ordered[j].Num {
			return ordered[i].Num < ordered[j].Num
		}
		return ordered[i].Gen < ordered[j].Gen
	})

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")

	type entry struct {
		offset int64
		gen    int
	}
	entries := make(map[int]entry, len(ordered))
	for _, ref := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries[ref.Num] = entry{offset: int64(buf.Len()), gen: ref.Gen}
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		writeObject(&buf, objects[ref])
		buf.WriteString("\nendobj\n")
	}

	maxNum := ordered[len(ordered)-1].Num
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n <= maxNum; n++ {
		if e, ok := entries[n]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", e.offset, e.gen)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(maxNum+1)))
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(doc.CatalogRef.Num, doc.CatalogRef.Gen))
	if doc.InfoRef != (raw.ObjectRef{}) {
		trailer.Set(raw.NameLiteral("Info"), raw.Ref(doc.InfoRef.Num, doc.InfoRef.Gen))
	}
	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	if _, err := out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	w.cfg.Logger.Debug("document written",
		observability.Int("objects", len(ordered)),
		observability.Int("bytes", buf.Len()))
	return nil
}

// collect assembles the object table to write: the raw objects minus
// expanded containers, dirty content streams re-encoded in place, and
// fresh objects for page content that has no number yet. Every page
// dictionary gets /Contents rewritten as the array of stream refs in
// page order, so appended overlays show up without special casing.
func (w *DocumentWriter) collect(doc *semantic.Document) (map[raw.ObjectRef]raw.Object, error) {
	objects := make(map[raw.ObjectRef]raw.Object, len(doc.Raw.Objects))
	for ref, obj := range doc.Raw.Objects {
		if isExpandedContainer(obj) {
			continue
		}
		objects[ref] = obj
	}

	nextNum := doc.Raw.MaxObjectNum() + 1
	for _, p := range doc.Pages {
		refs := raw.NewArray()
		for i, cs := range p.Contents {
			ref := cs.Ref
			if ref == (raw.ObjectRef{}) {
				ref = raw.ObjectRef{Num: nextNum}
				nextNum++
			}
			if cs.Dirty || cs.Ref == (raw.ObjectRef{}) {
				stream, err := encodeContent(cs.Ops)
				if err != nil {
					return nil, fmt.Errorf("encode page %d stream %d: %w", p.Index, i, err)
				}
				objects[ref] = stream
			}
			refs.Append(raw.Ref(ref.Num, ref.Gen))
		}
		if p.RawDict != nil {
			p.RawDict.Set(raw.NameLiteral("Contents"), refs)
		}
	}
	return objects, nil
}

// The loader keeps /ObjStm containers and xref streams in the object
// table after expansion. Writing them back would store every member
// twice and resurrect the old cross reference data.
func isExpandedContainer(obj raw.Object) bool {
	stream, ok := obj.(raw.Stream)
	if !ok {
		return false
	}
	typ, _ := raw.DictName(stream.Dictionary(), "Type")
	return typ == "ObjStm" || typ == "XRef"
}

func encodeContent(ops []contentstream.Operation) (*raw.StreamObj, error) {
	data, err := filters.FlateEncode(contentstream.Serialize(ops))
	if err != nil {
		return nil, err
	}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	return raw.NewStream(dict, data), nil
}

// writeObject renders one object body. Matching on the interfaces keeps
// the switch working for any Dictionary or Array implementation, the
// trailer included.
func writeObject(buf *bytes.Buffer, obj raw.Object) {
	switch o := obj.(type) {
	case raw.Name:
		buf.WriteByte('/')
		buf.WriteString(contentstream.NameLiteral(o.Value()))
	case raw.Number:
		if o.IsInteger() {
			buf.WriteString(strconv.FormatInt(o.Int(), 10))
		} else {
			buf.WriteString(contentstream.FormatNumber(o.Float()))
		}
	case raw.Boolean:
		if o.Value() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case raw.String:
		if o.IsHex() {
			buf.WriteByte('<')
			for _, ch := range o.Value() {
				fmt.Fprintf(buf, "%02X", ch)
			}
			buf.WriteByte('>')
		} else {
			buf.Write(contentstream.EscapeLiteralString(o.Value()))
		}
	case raw.Reference:
		fmt.Fprintf(buf, "%d %d R", o.Ref().Num, o.Ref().Gen)
	case raw.Stream:
		writeStream(buf, o)
	case raw.Array:
		buf.WriteByte('[')
		for i := 0; i < o.Len(); i++ {
			if i > 0 {
				buf.WriteByte(' ')
			}
			item, _ := o.Get(i)
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case raw.Dictionary:
		writeDict(buf, o)
	default:
		buf.WriteString("null")
	}
}

// writeDict emits keys in sorted order so identical documents serialize
// to identical bytes regardless of map iteration.
func writeDict(buf *bytes.Buffer, d raw.Dictionary) {
	keys := make([]string, 0, d.Len())
	for _, k := range d.Keys() {
		keys = append(keys, k.Value())
	}
	sort.Strings(keys)
	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteString("/" + contentstream.NameLiteral(k) + " ")
		v, _ := d.Get(raw.NameLiteral(k))
		writeObject(buf, v)
	}
	buf.WriteString(">>")
}

// writeStream emits the stream with /Length matching the bytes actually
// written. The dictionary is copied first so the document in memory is
// left untouched.
func writeStream(buf *bytes.Buffer, s raw.Stream) {
	dict := raw.Dict()
	if d := s.Dictionary(); d != nil {
		for _, k := range d.Keys() {
			v, _ := d.Get(k)
			dict.Set(k, v)
		}
	}
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(s.Length()))
	writeDict(buf, dict)
	buf.WriteString("\nstream\n")
	buf.Write(s.RawData())
	buf.WriteString("\nendstream")
}
