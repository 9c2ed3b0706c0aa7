package locator

import "testing"

func TestFindCPFs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"punctuated", "CPF: 123.456.789-00 ativo", []string{"123.456.789-00"}},
		{"bare", "CPF 12345678900 ativo", []string{"12345678900"}},
		{"bare at edges", "12345678900", []string{"12345678900"}},
		{"punctuated at start", "123.456.789-00 consta", []string{"123.456.789-00"}},
		{"two matches keep order", "titular 123.456.789-00 e conjuge 98765432100", []string{"123.456.789-00", "98765432100"}},
		{"letters bound bare run", "id98765432100x", []string{"98765432100"}},
		{"letters bound punctuated", "cpf123.456.789-00ok", []string{"123.456.789-00"}},
		{"ten digits", "1234567890", nil},
		{"twelve digits", "123456789012", nil},
		{"window inside long run", "conta 123456789012345 saldo", nil},
		{"digit before punctuated", "9123.456.789-00", nil},
		{"digit after punctuated", "123.456.789-001", nil},
		{"line break splits match", "123.456.\n789-00", nil},
		{"newline bounds bare run", "saldo\n12345678900\nfim", []string{"12345678900"}},
		{"partial punctuation", "123.456.78-900", nil},
		{"empty text", "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NewCPFLocator().FindCPFs(tc.text)
			if len(got) != len(tc.want) {
				t.Fatalf("matches = %+v, want %d", got, len(tc.want))
			}
			for i, m := range got {
				if m.RawText != tc.want[i] {
					t.Fatalf("match %d = %q, want %q", i, m.RawText, tc.want[i])
				}
			}
		})
	}
}

func TestFindCPFsOffsets(t *testing.T) {
	text := "CPF: 123.456.789-00."
	got := NewCPFLocator().FindCPFs(text)
	if len(got) != 1 {
		t.Fatalf("matches = %+v", got)
	}
	m := got[0]
	if m.StartOffset != 5 || m.EndOffset != 19 {
		t.Fatalf("span = %d..%d, want 5..19", m.StartOffset, m.EndOffset)
	}
	if text[m.StartOffset:m.EndOffset] != m.RawText {
		t.Fatalf("span text = %q, raw = %q", text[m.StartOffset:m.EndOffset], m.RawText)
	}
}

func TestDigitPositionsSkipSeparators(t *testing.T) {
	got := NewCPFLocator().FindCPFs("123.456.789-00")
	if len(got) != 1 {
		t.Fatalf("matches = %+v", got)
	}
	m := got[0]
	if len(m.DigitPositions) != 11 {
		t.Fatalf("digit positions = %d, want 11", len(m.DigitPositions))
	}
	wantOffsets := []int{0, 1, 2, 4, 5, 6, 8, 9, 10, 12, 13}
	for i, dp := range m.DigitPositions {
		if dp.DigitIndex != i {
			t.Fatalf("position %d index = %d", i, dp.DigitIndex)
		}
		if dp.CharOffset != wantOffsets[i] {
			t.Fatalf("digit %d offset = %d, want %d", i, dp.CharOffset, wantOffsets[i])
		}
		if i > 0 && dp.CharOffset <= m.DigitPositions[i-1].CharOffset {
			t.Fatalf("offsets not ascending at %d", i)
		}
	}
}

func TestDigitPositionsBareRun(t *testing.T) {
	got := NewCPFLocator().FindCPFs("x 12345678900 y")
	if len(got) != 1 {
		t.Fatalf("matches = %+v", got)
	}
	for i, dp := range got[0].DigitPositions {
		if dp.CharOffset != 2+i {
			t.Fatalf("digit %d offset = %d, want %d", i, dp.CharOffset, 2+i)
		}
	}
}
