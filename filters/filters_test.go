package filters

import (
	"bytes"
	"compress/lzw"
	"context"
	"encoding/ascii85"
	"testing"

	"github.com/YanSamuray/cpf-censoring/ir/raw"
)

func TestFlateRoundTrip(t *testing.T) {
	plain := []byte("BT /F1 12 Tf (123.456.789-00) Tj ET")
	enc, err := FlateEncode(plain)
	if err != nil {
		t.Fatalf("FlateEncode: %v", err)
	}
	got, err := NewFlateDecoder().Decode(context.Background(), enc, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestFlateWithPNGUpPredictor(t *testing.T) {
	// Two rows of [1 2 3]; the Up filter stores row deltas.
	predicted := []byte{2, 1, 2, 3, 2, 0, 0, 0}
	enc, err := FlateEncode(predicted)
	if err != nil {
		t.Fatalf("FlateEncode: %v", err)
	}
	params := raw.Dict()
	params.Set(raw.NameLiteral("Predictor"), raw.NumberInt(12))
	params.Set(raw.NameLiteral("Columns"), raw.NumberInt(3))

	got, err := NewFlateDecoder().Decode(context.Background(), enc, params)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []byte{1, 2, 3, 1, 2, 3}
	if !bytes.Equal(got, want) {
		t.Errorf("decoded = %v, want %v", got, want)
	}
}

func TestPNGPredictorFilters(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []byte
	}{
		{"none", []byte{0, 5, 6}, []byte{5, 6}},
		{"sub", []byte{1, 5, 6}, []byte{5, 11}},
		{"average", []byte{3, 4, 4}, []byte{4, 6}},
		{"paeth first row", []byte{4, 7, 1}, []byte{7, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := undoPNGPredictor(tt.data, 2, 1)
			if err != nil {
				t.Fatalf("undoPNGPredictor: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTIFFPredictor(t *testing.T) {
	got, err := undoTIFFPredictor([]byte{10, 1, 2, 3}, 4, 1)
	if err != nil {
		t.Fatalf("undoTIFFPredictor: %v", err)
	}
	want := []byte{10, 11, 13, 16}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLZWDecode(t *testing.T) {
	plain := []byte("aaaaaabbbbbbcccccc")
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	if _, err := w.Write(plain); err != nil {
		t.Fatalf("lzw write: %v", err)
	}
	w.Close()

	got, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("decoded = %q, want %q", got, plain)
	}
}

func TestLZWRejectsLateChange(t *testing.T) {
	params := raw.Dict()
	params.Set(raw.NameLiteral("EarlyChange"), raw.NumberInt(0))
	if _, err := NewLZWDecoder().Decode(context.Background(), []byte{0}, params); err == nil {
		t.Errorf("EarlyChange 0 should be rejected")
	}
}

func TestASCIIHexDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "48656C6C6F>", "Hello"},
		{"whitespace", "48 65 6C\n6C 6F>", "Hello"},
		{"odd padded", "48656C6C6F7>", "Hellop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewASCIIHexDecoder().Decode(context.Background(), []byte(tt.in), nil)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestASCII85Decode(t *testing.T) {
	plain := []byte("Hello, redaction!")
	enc := make([]byte, ascii85.MaxEncodedLen(len(plain)))
	n := ascii85.Encode(enc, plain)
	in := append(enc[:n], '~', '>')

	got, err := NewASCII85Decoder().Decode(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("got %q, want %q", got, plain)
	}
}

func TestRunLengthDecode(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"literal", []byte{2, 'a', 'b', 'c', 128}, "abc"},
		{"replicate", []byte{254, 'x', 128}, "xxx"},
		{"mixed", []byte{0, 'a', 255, 'b', 128}, "abb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRunLengthDecoder().Decode(context.Background(), tt.in, nil)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPipelineUnknownFilter(t *testing.T) {
	p := Default(Limits{})
	if _, err := p.Decode(context.Background(), nil, []string{"JBIG2Decode"}, nil); err == nil {
		t.Errorf("unknown filter should error")
	}
}

func TestPipelineSizeLimit(t *testing.T) {
	plain := bytes.Repeat([]byte{'a'}, 1024)
	enc, err := FlateEncode(plain)
	if err != nil {
		t.Fatalf("FlateEncode: %v", err)
	}
	p := Default(Limits{MaxDecompressedSize: 100})
	if _, err := p.Decode(context.Background(), enc, []string{"FlateDecode"}, nil); err == nil {
		t.Errorf("oversized output should error")
	}
}

func TestPipelineChain(t *testing.T) {
	plain := []byte("chained")
	flated, err := FlateEncode(plain)
	if err != nil {
		t.Fatalf("FlateEncode: %v", err)
	}
	hexed := make([]byte, 0, len(flated)*2+1)
	const digits = "0123456789ABCDEF"
	for _, b := range flated {
		hexed = append(hexed, digits[b>>4], digits[b&0xF])
	}
	hexed = append(hexed, '>')

	p := Default(Limits{})
	got, err := p.Decode(context.Background(), hexed, []string{"ASCIIHexDecode", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode chain: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("got %q, want %q", got, plain)
	}
}
