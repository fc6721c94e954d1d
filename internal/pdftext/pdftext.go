// Package pdftext reads the native text layer of a PDF.
//
// It walks each page's decoded content stream and collects the arguments
// of the text-showing operators (Tj, TJ, ' and "). This is a best-effort
// reader: PDFs with subsetted fonts and custom encodings can yield garbage,
// which is exactly the case the downstream OCR fallback exists for.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Page is one page's native text, 1-indexed.
type Page struct {
	Number int
	Text   string
}

// Extraction is the result of reading a document's text layer.
// Pages holds only pages with non-whitespace content; PageCount is the
// document's physical page count.
type Extraction struct {
	Pages     []Page
	PageCount int
}

// Reader extracts native text from PDF buffers.
type Reader struct {
	conf *model.Configuration
}

// NewReader creates a Reader with relaxed validation, matching how real
// scanned uploads tend to bend the PDF spec.
func NewReader() *Reader {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Reader{conf: conf}
}

// Extract parses the document and returns per-page native text plus the
// physical page count. Whitespace-only pages are dropped.
func (r *Reader) Extract(data []byte) (*Extraction, error) {
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), r.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	ext := &Extraction{PageCount: pdfCtx.PageCount}

	for pageNum := 1; pageNum <= pdfCtx.PageCount; pageNum++ {
		reader, err := pdfcpu.ExtractPageContent(pdfCtx, pageNum)
		if err != nil {
			return nil, fmt.Errorf("failed to read content of page %d: %w", pageNum, err)
		}
		if reader == nil {
			continue
		}

		content, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read content of page %d: %w", pageNum, err)
		}

		text := strings.TrimSpace(contentText(content))
		if text == "" {
			continue
		}
		ext.Pages = append(ext.Pages, Page{Number: pageNum, Text: text})
	}

	return ext, nil
}

// PageCount returns the physical page count without extracting text.
func (r *Reader) PageCount(data []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(data), r.conf)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}

// contentText scans a decoded content stream and assembles the text shown
// by Tj, TJ, ' and ". Td, TD and T* begin new lines.
func contentText(content []byte) string {
	var (
		out     strings.Builder
		strs    []string // string operands since the last operator
		inArray bool
	)

	flush := func(sep string) {
		for i, s := range strs {
			if i > 0 {
				out.WriteString(sep)
			}
			out.WriteString(s)
		}
		strs = strs[:0]
	}

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			s, next := parseLiteralString(content, i)
			strs = append(strs, s)
			i = next
		case c == '<' && i+1 < len(content) && content[i+1] == '<':
			// Dictionary open, not a hex string.
			i += 2
		case c == '<':
			s, next := parseHexString(content, i)
			strs = append(strs, s)
			i = next
		case c == '[':
			inArray = true
			strs = strs[:0]
			i++
		case c == ']':
			i++
		case c == '%':
			// Comment runs to end of line.
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case c == '\'':
			out.WriteByte('\n')
			flush("")
			i++
		case c == '"':
			out.WriteByte('\n')
			flush("")
			i++
		case isOperatorChar(c):
			start := i
			for i < len(content) && isOperatorChar(content[i]) {
				i++
			}
			switch string(content[start:i]) {
			case "Tj":
				flush("")
			case "TJ":
				flush("")
				inArray = false
			case "Td", "TD":
				out.WriteByte('\n')
				strs = strs[:0]
			case "T*":
				out.WriteByte('\n')
				strs = strs[:0]
			default:
				if !inArray {
					strs = strs[:0]
				}
			}
		default:
			i++
		}
	}

	return out.String()
}

func isOperatorChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '*'
}

// parseLiteralString parses a (...) string starting at content[start]=='('.
// Returns the decoded string and the index after the closing paren.
func parseLiteralString(content []byte, start int) (string, int) {
	var buf bytes.Buffer
	depth := 0
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			if i+1 >= len(content) {
				i++
				continue
			}
			i++
			switch content[i] {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b', 'f':
				// ignore
			case '(', ')', '\\':
				buf.WriteByte(content[i])
			case '\n':
				// line continuation
			default:
				if content[i] >= '0' && content[i] <= '7' {
					// up to three octal digits
					v := 0
					n := 0
					for n < 3 && i < len(content) && content[i] >= '0' && content[i] <= '7' {
						v = v*8 + int(content[i]-'0')
						i++
						n++
					}
					i--
					buf.WriteByte(byte(v))
				} else {
					buf.WriteByte(content[i])
				}
			}
			i++
		case '(':
			depth++
			if depth > 1 {
				buf.WriteByte(c)
			}
			i++
		case ')':
			depth--
			if depth == 0 {
				return decodePDFString(buf.Bytes()), i + 1
			}
			buf.WriteByte(c)
			i++
		default:
			buf.WriteByte(c)
			i++
		}
	}
	return decodePDFString(buf.Bytes()), i
}

// parseHexString parses a <...> string starting at content[start]=='<'.
func parseHexString(content []byte, start int) (string, int) {
	i := start + 1
	var hexDigits []byte
	for i < len(content) && content[i] != '>' {
		c := content[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			hexDigits = append(hexDigits, c)
		}
		i++
	}
	if i < len(content) {
		i++ // consume '>'
	}
	if len(hexDigits)%2 == 1 {
		hexDigits = append(hexDigits, '0')
	}

	raw := make([]byte, 0, len(hexDigits)/2)
	for j := 0; j+1 < len(hexDigits); j += 2 {
		raw = append(raw, hexVal(hexDigits[j])<<4|hexVal(hexDigits[j+1]))
	}
	return decodePDFString(raw), i
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// decodePDFString interprets raw string bytes. UTF-16BE strings carry a
// BOM; everything else is treated as single-byte text.
func decodePDFString(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		u16 := make([]uint16, 0, (len(raw)-2)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			u16 = append(u16, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(u16))
	}
	return string(raw)
}
