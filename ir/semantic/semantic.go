// Package semantic models a parsed document as pages with resolved
// inheritance, font resources and lexed content streams. It is the
// level the text extractor and the redactor work against.
package semantic

import (
	"github.com/YanSamuray/cpf-censoring/contentstream"
	"github.com/YanSamuray/cpf-censoring/fonts"
	"github.com/YanSamuray/cpf-censoring/ir/raw"
)

// Rectangle is a PDF rectangle normalized to LL/UR order.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// Resources holds the page resources the processing pipeline uses.
// Dict keeps the underlying dictionary so additions (an overlay font,
// for instance) can be written back.
type Resources struct {
	Fonts map[string]*fonts.Font
	Dict  raw.Dictionary
}

// Font returns the font registered under a resource name, or nil.
func (r *Resources) Font(name string) *fonts.Font {
	if r == nil {
		return nil
	}
	return r.Fonts[name]
}

// ContentStream is one decoded and lexed piece of a page's content.
// Ref names the stream object it came from; a zero Ref marks content
// that has no own object yet (a direct stream or an appended overlay).
// Dirty streams are re-serialized and re-encoded at write time.
type ContentStream struct {
	Ref   raw.ObjectRef
	Ops   []contentstream.Operation
	Dirty bool
}

// Page is one page with inheritance applied.
type Page struct {
	Index     int
	Ref       raw.ObjectRef
	MediaBox  Rectangle
	CropBox   Rectangle
	Rotate    int
	Resources *Resources
	Contents  []ContentStream
	RawDict   raw.Dictionary
}

// Document is the page-level view over a raw document.
type Document struct {
	Pages      []*Page
	Raw        *raw.Document
	CatalogRef raw.ObjectRef
	InfoRef    raw.ObjectRef
}
