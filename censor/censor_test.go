package censor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YanSamuray/cpf-censoring/extractor"
	"github.com/YanSamuray/cpf-censoring/ir/semantic"
	"github.com/YanSamuray/cpf-censoring/parser"
)

// buildPDF assembles a complete classic-xref file with one page per
// text, each drawn in Helvetica so glyph widths resolve from the
// builtin tables.
func buildPDF(texts ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make(map[int]int64)
	add := func(num int, body string) {
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	kids := make([]string, len(texts))
	for i := range texts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	add(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(texts)))
	add(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	maxNum := 3
	for i, text := range texts {
		pageNum, csNum := 4+2*i, 5+2*i
		add(pageNum, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", csNum))
		content := fmt.Sprintf("BT /F1 10 Tf 72 700 Td (%s) Tj ET\n", text)
		offsets[csNum] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", csNum, len(content), content)
		maxNum = csNum
	}

	xrefAt := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", maxNum+1)
	for num := 1; num <= maxNum; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", maxNum+1, xrefAt)
	return buf.Bytes()
}

// reopen parses writer output back into its page view.
func reopen(t *testing.T, data []byte) *semantic.Document {
	t.Helper()
	rawDoc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("reparse output: %v", err)
	}
	doc, err := semantic.Build(context.Background(), rawDoc, semantic.BuilderConfig{})
	if err != nil {
		t.Fatalf("rebuild output: %v", err)
	}
	return doc
}

func pageTexts(t *testing.T, doc *semantic.Document) []string {
	t.Helper()
	ext := extractor.NewTextExtractor(extractor.Config{})
	out := make([]string, len(doc.Pages))
	for i, p := range doc.Pages {
		out[i] = ext.Extract(p).Text
	}
	return out
}

func TestProcessRedactsDocument(t *testing.T) {
	input := buildPDF("CPF: 123.456.789-00")

	var out bytes.Buffer
	stats, err := NewProcessor(nil, Options{}).Process(context.Background(), bytes.NewReader(input), int64(len(input)), &out)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if stats.Pages != 1 || stats.Matches != 1 || stats.Redacted != 1 || stats.SkippedMatches != 0 {
		t.Errorf("stats = %+v", stats)
	}

	doc := reopen(t, out.Bytes())
	if len(doc.Pages) != 1 {
		t.Fatalf("output has %d pages", len(doc.Pages))
	}
	// Guard, original, overlay.
	if got := len(doc.Pages[0].Contents); got != 3 {
		t.Errorf("output page has %d content streams, want 3", got)
	}

	text := pageTexts(t, doc)[0]
	if strings.Contains(text, "123") || strings.Contains(text, "00") {
		t.Errorf("covered digits survive in text layer: %q", text)
	}
	if !strings.Contains(text, ".456.789-") {
		t.Errorf("preserved digits missing: %q", text)
	}
}

func TestProcessCountsEveryPage(t *testing.T) {
	input := buildPDF(
		"Titular: 111.222.333-44",
		"sem numeros nesta pagina",
		"Conta de 98765432100 encerrada",
	)

	var out bytes.Buffer
	stats, err := NewProcessor(nil, Options{}).Process(context.Background(), bytes.NewReader(input), int64(len(input)), &out)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if stats.Pages != 3 || stats.Matches != 2 || stats.Redacted != 2 {
		t.Errorf("stats = %+v", stats)
	}

	texts := pageTexts(t, reopen(t, out.Bytes()))
	if strings.Contains(texts[0], "111") || strings.Contains(texts[0], "44") {
		t.Errorf("page 1 still carries covered digits: %q", texts[0])
	}
	if texts[1] != "sem numeros nesta pagina" {
		t.Errorf("clean page rewritten: %q", texts[1])
	}
	if strings.Contains(texts[2], "987") || !strings.Contains(texts[2], "654321") {
		t.Errorf("page 3 = %q", texts[2])
	}
}

func TestProcessLeavesCleanDocumentAlone(t *testing.T) {
	input := buildPDF("nothing to hide")

	var out bytes.Buffer
	stats, err := NewProcessor(nil, Options{}).Process(context.Background(), bytes.NewReader(input), int64(len(input)), &out)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if stats.Matches != 0 || stats.Redacted != 0 {
		t.Errorf("stats = %+v", stats)
	}

	doc := reopen(t, out.Bytes())
	if got := len(doc.Pages[0].Contents); got != 1 {
		t.Errorf("clean page gained streams: %d", got)
	}
	if text := pageTexts(t, doc)[0]; text != "nothing to hide" {
		t.Errorf("text = %q", text)
	}
}

func TestProcessRejectsEncrypted(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	o1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	xrefAt := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", o1)
	fmt.Fprintf(&buf, "trailer\n<< /Size 2 /Root 1 0 R /Encrypt 9 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	input := buf.Bytes()

	var out bytes.Buffer
	_, err := NewProcessor(nil, Options{}).Process(context.Background(), bytes.NewReader(input), int64(len(input)), &out)
	if !errors.Is(err, parser.ErrEncrypted) {
		t.Errorf("err = %v, want ErrEncrypted", err)
	}
	if !errors.Is(err, parser.ErrUnreadable) {
		t.Errorf("encrypted input must classify as unreadable")
	}
	if out.Len() != 0 {
		t.Errorf("output written for rejected document: %d bytes", out.Len())
	}
}

func TestProcessFileWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.pdf")
	outDir := filepath.Join(dir, "out")
	if err := os.WriteFile(inPath, buildPDF("CPF 555.666.777-88 ok"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(outDir, "in.pdf")

	stats, err := NewProcessor(nil, Options{}).ProcessFile(context.Background(), inPath, outPath)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if stats.Matches != 1 || stats.Redacted != 1 {
		t.Errorf("stats = %+v", stats)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "in.pdf" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("output dir holds %v, want only in.pdf", names)
	}

	written, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if text := pageTexts(t, reopen(t, written))[0]; strings.Contains(text, "555") {
		t.Errorf("output text still carries covered digits: %q", text)
	}
}

func TestProcessFileUnreadableInput(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pdf")
	if err := os.WriteFile(garbage, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		inPath string
	}{
		{"missing file", filepath.Join(dir, "absent.pdf")},
		{"not a pdf", garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outPath := filepath.Join(dir, tt.name+".out.pdf")
			_, err := NewProcessor(nil, Options{}).ProcessFile(context.Background(), tt.inPath, outPath)
			if !errors.Is(err, parser.ErrUnreadable) {
				t.Errorf("err = %v, want ErrUnreadable", err)
			}
			if _, statErr := os.Stat(outPath); !errors.Is(statErr, os.ErrNotExist) {
				t.Errorf("output file created for unreadable input")
			}
		})
	}
}

func TestProcessContextCancelled(t *testing.T) {
	input := buildPDF("CPF: 123.456.789-00")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := NewProcessor(nil, Options{}).Process(ctx, bytes.NewReader(input), int64(len(input)), &out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("output written after cancellation: %d bytes", out.Len())
	}
}
