package ir

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/YanSamuray/cpf-censoring/parser"
)

// onePagePDF assembles a classic-xref file with a single Helvetica page.
func onePagePDF(trailerExtra string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int64, 6)
	add := func(num int, body string) {
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	add(2, "<< /Type /Pages /Kids [4 0 R] /Count 1 >>")
	add(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	add(4, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents 5 0 R >>")
	content := "BT /F1 10 Tf 72 700 Td (ola) Tj ET\n"
	offsets[5] = int64(buf.Len())
	fmt.Fprintf(&buf, "5 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content)

	xrefAt := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for num := 1; num <= 5; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", trailerExtra, xrefAt)
	return buf.Bytes()
}

func TestLoadBuildsPageView(t *testing.T) {
	doc, err := NewPipeline(Config{}).Load(context.Background(), onePagePDF(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Raw == nil {
		t.Fatal("document lost its raw layer")
	}
	if doc.CatalogRef.Num != 1 {
		t.Errorf("CatalogRef.Num = %d, want 1", doc.CatalogRef.Num)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(doc.Pages))
	}
	page := doc.Pages[0]
	if page.MediaBox.URX != 612 || page.MediaBox.URY != 792 {
		t.Errorf("MediaBox = %+v", page.MediaBox)
	}
	if len(page.Contents) != 1 || len(page.Contents[0].Ops) == 0 {
		t.Errorf("content streams not decoded: %+v", page.Contents)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := NewPipeline(Config{}).Load(context.Background(), []byte("not a pdf at all"))
	if !errors.Is(err, parser.ErrUnreadable) {
		t.Fatalf("err = %v, want ErrUnreadable", err)
	}
}

func TestLoadRejectsEncrypted(t *testing.T) {
	_, err := NewPipeline(Config{}).Load(context.Background(), onePagePDF(" /Encrypt 9 0 R"))
	if !errors.Is(err, parser.ErrEncrypted) {
		t.Fatalf("err = %v, want ErrEncrypted", err)
	}
	if !errors.Is(err, parser.ErrUnreadable) {
		t.Fatalf("err = %v, should also match ErrUnreadable", err)
	}
}
