package semantic

import (
	"context"
	"errors"
	"fmt"

	"github.com/YanSamuray/cpf-censoring/contentstream"
	"github.com/YanSamuray/cpf-censoring/filters"
	"github.com/YanSamuray/cpf-censoring/fonts"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
	"github.com/YanSamuray/cpf-censoring/observability"
	"github.com/YanSamuray/cpf-censoring/recovery"
)

// maxTreeDepth bounds page tree recursion. Real trees are a handful of
// levels; anything deeper is a loop the visited set missed.
const maxTreeDepth = 64

// BuilderConfig controls page tree construction.
type BuilderConfig struct {
	Recovery recovery.Strategy
	Limits   filters.Limits
	Logger   observability.Logger
}

// inheritedProps carries the attributes a Pages node passes down.
type inheritedProps struct {
	MediaBox  *Rectangle
	CropBox   *Rectangle
	Rotate    *int
	Resources raw.Object
}

type builder struct {
	cfg BuilderConfig
	doc *raw.Document
}

// Build walks the page tree of a raw document and returns the page
// view: inheritance applied, fonts loaded, contents decoded and lexed.
func Build(ctx context.Context, doc *raw.Document, cfg BuilderConfig) (*Document, error) {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	b := &builder{cfg: cfg, doc: doc}
	out := &Document{Raw: doc}

	if doc.Trailer == nil {
		return nil, errors.New("document has no trailer")
	}
	rootObj, ok := doc.Trailer.Get(raw.NameLiteral("Root"))
	if !ok {
		return nil, errors.New("trailer missing /Root")
	}
	if ref, ok := rootObj.(raw.Reference); ok {
		out.CatalogRef = ref.Ref()
	}
	catalog, ok := doc.Resolve(rootObj).(raw.Dictionary)
	if !ok {
		return nil, errors.New("catalog is not a dictionary")
	}
	if info, ok := doc.Trailer.Get(raw.NameLiteral("Info")); ok {
		if ref, ok := info.(raw.Reference); ok {
			out.InfoRef = ref.Ref()
		}
	}

	pagesObj, ok := catalog.Get(raw.NameLiteral("Pages"))
	if !ok {
		return nil, errors.New("catalog missing /Pages")
	}
	pages, err := b.walk(ctx, pagesObj, inheritedProps{}, make(map[raw.ObjectRef]bool), 0)
	if err != nil {
		return nil, err
	}
	for i, p := range pages {
		p.Index = i
	}
	out.Pages = pages

	cfg.Logger.Debug("page tree built", observability.Int("pages", len(pages)))
	return out, nil
}

// walk descends one page tree node, collecting leaf pages in order.
func (b *builder) walk(ctx context.Context, obj raw.Object, inherited inheritedProps, visited map[raw.ObjectRef]bool, depth int) ([]*Page, error) {
	if depth > maxTreeDepth {
		return nil, fmt.Errorf("page tree deeper than %d levels", maxTreeDepth)
	}
	var nodeRef raw.ObjectRef
	if ref, ok := obj.(raw.Reference); ok {
		nodeRef = ref.Ref()
		if visited[nodeRef] {
			return nil, fmt.Errorf("page tree cycle at %s", nodeRef)
		}
		visited[nodeRef] = true
	}
	dict, ok := b.doc.Resolve(obj).(raw.Dictionary)
	if !ok {
		return nil, errors.New("page tree node is not a dictionary")
	}

	if mb := b.rectangle(dict, "MediaBox"); mb != nil {
		inherited.MediaBox = mb
	}
	if cb := b.rectangle(dict, "CropBox"); cb != nil {
		inherited.CropBox = cb
	}
	if v, ok := b.doc.Resolve(getOrNull(dict, "Rotate")).(raw.Number); ok {
		rot := int(v.Int())
		inherited.Rotate = &rot
	}
	if res, ok := dict.Get(raw.NameLiteral("Resources")); ok {
		inherited.Resources = res
	}

	typ, _ := raw.DictName(dict, "Type")
	_, hasKids := dict.Get(raw.NameLiteral("Kids"))
	if typ == "Page" || (typ != "Pages" && !hasKids) {
		page, err := b.buildPage(ctx, nodeRef, dict, inherited)
		if err != nil {
			return nil, err
		}
		return []*Page{page}, nil
	}

	kids, ok := b.doc.Resolve(getOrNull(dict, "Kids")).(*raw.ArrayObj)
	if !ok {
		return nil, errors.New("pages node missing /Kids")
	}
	var pages []*Page
	for _, kid := range kids.Items {
		sub, err := b.walk(ctx, kid, inherited, visited, depth+1)
		if err != nil {
			if !b.tolerate(ctx, err, "pagetree") {
				return nil, err
			}
			b.cfg.Logger.Warn("skipping page tree branch", observability.Error("error", err))
			continue
		}
		pages = append(pages, sub...)
	}
	return pages, nil
}

func (b *builder) buildPage(ctx context.Context, ref raw.ObjectRef, dict raw.Dictionary, inherited inheritedProps) (*Page, error) {
	page := &Page{Ref: ref, RawDict: dict}

	if mb := inherited.MediaBox; mb != nil {
		page.MediaBox = *mb
	} else {
		// US Letter, the reader fallback for boxless pages.
		page.MediaBox = Rectangle{0, 0, 612, 792}
	}
	if cb := inherited.CropBox; cb != nil {
		page.CropBox = *cb
	} else {
		page.CropBox = page.MediaBox
	}
	if inherited.Rotate != nil {
		page.Rotate = *inherited.Rotate
	}

	if inherited.Resources != nil {
		page.Resources = b.buildResources(ctx, inherited.Resources)
	} else {
		page.Resources = &Resources{Fonts: map[string]*fonts.Font{}}
	}

	if contents, ok := dict.Get(raw.NameLiteral("Contents")); ok {
		streams, err := b.buildContents(ctx, contents)
		if err != nil {
			return nil, err
		}
		page.Contents = streams
	}
	return page, nil
}

// buildResources resolves the /Font entries of a resources dictionary.
// A font that fails to load is dropped with a warning; its text will
// extract as unknown glyphs rather than sinking the page.
func (b *builder) buildResources(ctx context.Context, obj raw.Object) *Resources {
	res := &Resources{Fonts: map[string]*fonts.Font{}}
	dict, ok := b.doc.Resolve(obj).(raw.Dictionary)
	if !ok {
		return res
	}
	res.Dict = dict

	fontsDict, ok := b.doc.Resolve(getOrNull(dict, "Font")).(raw.Dictionary)
	if !ok {
		return res
	}
	for _, key := range fontsDict.Keys() {
		fd, ok := b.doc.Resolve(getOrNull(fontsDict, key.Value())).(raw.Dictionary)
		if !ok {
			continue
		}
		f, err := fonts.Load(ctx, b.doc, key.Value(), fd, b.cfg.Limits)
		if err != nil {
			b.cfg.Logger.Warn("dropping unloadable font",
				observability.String("font", key.Value()),
				observability.Error("error", err))
			continue
		}
		res.Fonts[key.Value()] = f
	}
	return res
}

// buildContents decodes and lexes a /Contents entry, a single stream or
// an array of streams. Operation state carries across the returned
// streams in order, so processing concatenates them logically.
func (b *builder) buildContents(ctx context.Context, obj raw.Object) ([]ContentStream, error) {
	items := []raw.Object{obj}
	if arr, ok := b.doc.Resolve(obj).(*raw.ArrayObj); ok {
		items = arr.Items
	}
	var out []ContentStream
	for _, item := range items {
		var ref raw.ObjectRef
		if r, ok := item.(raw.Reference); ok {
			ref = r.Ref()
		}
		stm, ok := b.doc.Resolve(item).(*raw.StreamObj)
		if !ok {
			continue
		}
		names, params := filters.ForStream(stm.Dict)
		data := stm.Data
		if len(names) > 0 {
			decoded, err := filters.Default(b.cfg.Limits).Decode(ctx, data, names, params)
			if err != nil {
				err = fmt.Errorf("decode content stream %s: %w", ref, err)
				if !b.tolerate(ctx, err, "contents") {
					return nil, err
				}
				b.cfg.Logger.Warn("skipping undecodable content stream",
					observability.Error("error", err))
				continue
			}
			data = decoded
		}
		out = append(out, ContentStream{Ref: ref, Ops: contentstream.Lex(data)})
	}
	return out, nil
}

func (b *builder) rectangle(d raw.Dictionary, key string) *Rectangle {
	arr, ok := b.doc.Resolve(getOrNull(d, key)).(*raw.ArrayObj)
	if !ok || len(arr.Items) < 4 {
		return nil
	}
	var vals [4]float64
	for i := 0; i < 4; i++ {
		n, ok := b.doc.Resolve(arr.Items[i]).(raw.Number)
		if !ok {
			return nil
		}
		vals[i] = n.Float()
	}
	r := &Rectangle{LLX: vals[0], LLY: vals[1], URX: vals[2], URY: vals[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

func (b *builder) tolerate(ctx context.Context, err error, component string) bool {
	if b.cfg.Recovery == nil {
		return false
	}
	loc := recovery.Location{Component: component}
	switch b.cfg.Recovery.OnError(ctx, err, loc) {
	case recovery.ActionFix, recovery.ActionWarn, recovery.ActionSkip:
		return true
	}
	return false
}

func getOrNull(d raw.Dictionary, key string) raw.Object {
	if v, ok := d.Get(raw.NameLiteral(key)); ok {
		return v
	}
	return raw.NullObj{}
}
