package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/YanSamuray/cpf-censoring/parser"
)

// samplePDF assembles a one-page classic-xref file drawing text in
// Helvetica.
func samplePDF(text string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make(map[int]int64)
	add := func(num int, body string) {
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}
	add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	add(2, "<< /Type /Pages /Kids [4 0 R] /Count 1 >>")
	add(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	add(4, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents 5 0 R >>")
	content := fmt.Sprintf("BT /F1 10 Tf 72 700 Td (%s) Tj ET\n", text)
	offsets[5] = int64(buf.Len())
	fmt.Fprintf(&buf, "5 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content)
	xrefAt := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for num := 1; num <= 5; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	return buf.Bytes()
}

func writeInput(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunProcessesDirectory(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out", "nested")
	if err := os.Mkdir(in, 0o755); err != nil {
		t.Fatal(err)
	}
	writeInput(t, in, "b.pdf", samplePDF("sem cpf aqui"))
	writeInput(t, in, "a.PDF", samplePDF("CPF: 123.456.789-00"))
	writeInput(t, in, "notes.txt", []byte("ignored"))
	if err := os.Mkdir(filepath.Join(in, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	summary, err := Run(context.Background(), Config{InputDir: in, OutputDir: out}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 2 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Matches != 1 || summary.Redacted != 1 {
		t.Errorf("summary = %+v", summary)
	}
	for _, name := range []string{"a.PDF", "b.pdf"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("output %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "notes.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("non-pdf entry was processed")
	}
}

func TestRunReportsPerFileFailure(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(in, 0o755); err != nil {
		t.Fatal(err)
	}
	writeInput(t, in, "bad.pdf", []byte("not a pdf at all"))
	writeInput(t, in, "good.pdf", samplePDF("CPF 98765432100 ok"))

	summary, err := Run(context.Background(), Config{InputDir: in, OutputDir: out}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Name != "bad.pdf" {
		t.Fatalf("failures = %+v", summary.Failures)
	}
	if !errors.Is(summary.Failures[0], parser.ErrUnreadable) {
		t.Errorf("failure err = %v, want ErrUnreadable", summary.Failures[0].Err)
	}
	if _, err := os.Stat(filepath.Join(out, "bad.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output written for failed file")
	}
	if _, err := os.Stat(filepath.Join(out, "good.pdf")); err != nil {
		t.Errorf("output good.pdf: %v", err)
	}
}

func TestRunWorkerPool(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(in, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		writeInput(t, in, fmt.Sprintf("doc%d.pdf", i), samplePDF(fmt.Sprintf("arquivo %d com 111.222.333-44", i)))
	}

	summary, err := Run(context.Background(), Config{InputDir: in, OutputDir: out, Workers: 3}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 6 || summary.Failed != 0 || summary.Matches != 6 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(in, 0o755); err != nil {
		t.Fatal(err)
	}

	summary, err := Run(context.Background(), Config{InputDir: in, OutputDir: out}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 0 || summary.Failed != 0 || len(summary.Failures) != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if info, err := os.Stat(out); err != nil || !info.IsDir() {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestRunBadInputDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   string
	}{
		{"missing", filepath.Join(dir, "absent")},
		{"not a directory", file},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), Config{InputDir: tt.in, OutputDir: filepath.Join(dir, "out")}, nil)
			if err == nil {
				t.Fatal("Run succeeded")
			}
		})
	}
}

func TestRunContextCancelled(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(in, 0o755); err != nil {
		t.Fatal(err)
	}
	writeInput(t, in, "a.pdf", samplePDF("CPF: 123.456.789-00"))
	writeInput(t, in, "b.pdf", samplePDF("outro arquivo"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := Run(ctx, Config{InputDir: in, OutputDir: out}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if summary.Processed != 0 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}
}
