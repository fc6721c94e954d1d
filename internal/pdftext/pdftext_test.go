package pdftext

import (
	"strings"
	"testing"
)

func TestContentText_Tj(t *testing.T) {
	content := []byte(`BT /F1 12 Tf (Hello) Tj ( world) Tj ET`)
	got := contentText(content)
	if got != "Hello world" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_TJArray(t *testing.T) {
	content := []byte(`BT [(He) -20 (llo)] TJ ET`)
	got := contentText(content)
	if got != "Hello" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_NewlineOperators(t *testing.T) {
	content := []byte(`BT (first) Tj 0 -14 Td (second) Tj T* (third) Tj ET`)
	got := contentText(content)

	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3: %q", len(lines), got)
	}
	if lines[0] != "first" || lines[1] != "second" || lines[2] != "third" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_QuoteOperators(t *testing.T) {
	// ' shows its operand on the next line.
	content := []byte(`BT (first) Tj (second) ' ET`)
	got := contentText(content)
	if got != "first\nsecond" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_Escapes(t *testing.T) {
	content := []byte(`((nested) and \( escaped \)) Tj`)
	got := contentText(content)
	if got != "(nested) and ( escaped )" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_OctalEscape(t *testing.T) {
	content := []byte(`(\101\102C) Tj`)
	got := contentText(content)
	if got != "ABC" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_HexString(t *testing.T) {
	content := []byte(`<48656C6C6F> Tj`)
	got := contentText(content)
	if got != "Hello" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_OddHexStringPadded(t *testing.T) {
	// Odd digit counts are padded with a trailing zero.
	content := []byte(`<48656C6C6F4> Tj`)
	got := contentText(content)
	if got != "Hello@" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_UTF16Hex(t *testing.T) {
	// FEFF BOM followed by UTF-16BE for shalom's first two letters.
	content := []byte(`<FEFF05E905DC> Tj`)
	got := contentText(content)
	if got != "של" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_CommentsSkipped(t *testing.T) {
	content := []byte("% a comment with (parens) inside\n(real) Tj")
	got := contentText(content)
	if got != "real" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_NonTextOperandsDiscarded(t *testing.T) {
	// A string operand consumed by a non-text operator must not leak.
	content := []byte(`(ignored) SomeOp (shown) Tj`)
	got := contentText(content)
	if got != "shown" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestContentText_DictionaryNotHexString(t *testing.T) {
	content := []byte(`<< /Type /Page >> (text) Tj`)
	got := contentText(content)
	if got != "text" {
		t.Errorf("contentText() = %q", got)
	}
}

func TestDecodePDFString_Plain(t *testing.T) {
	if got := decodePDFString([]byte("plain")); got != "plain" {
		t.Errorf("decodePDFString() = %q", got)
	}
}

func TestExtract_RejectsGarbage(t *testing.T) {
	r := NewReader()
	if _, err := r.Extract([]byte("not a pdf at all")); err == nil {
		t.Error("Extract() should fail on non-PDF input")
	}
}

func TestPageCount_RejectsGarbage(t *testing.T) {
	r := NewReader()
	if _, err := r.PageCount([]byte("not a pdf at all")); err == nil {
		t.Error("PageCount() should fail on non-PDF input")
	}
}
