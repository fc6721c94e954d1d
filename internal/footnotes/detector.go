// Package footnotes splits footnote spans out of a page's text.
//
// Detection is heuristic. The dominant layout in the source corpus is a
// bottom-region block of marker-prefixed lines (Hebrew letters or numbers),
// so that is what the detector looks for; a page without such a block
// passes through untouched.
package footnotes

import (
	"fmt"
	"regexp"
	"strings"
)

// Position describes where on the page a footnote was found.
type Position string

const (
	PositionBottom  Position = "bottom"
	PositionInline  Position = "inline"
	PositionEndnote Position = "endnote"
)

// Footnote is one structured footnote extracted from a page.
type Footnote struct {
	ID         string   `json:"id"`
	Marker     string   `json:"marker"`
	Text       string   `json:"text"`
	PageNumber int      `json:"page_number"`
	Position   Position `json:"position"`
	Confidence float64  `json:"confidence"` // 0..1
	References []string `json:"references,omitempty"`
}

// Detection is the result of scanning one page.
type Detection struct {
	MainText  string
	Footnotes []Footnote
}

// hebrewLetters are the marker letters checked in order, including finals.
var hebrewLetters = []string{
	"א", "ב", "ג", "ד", "ה", "ו", "ז", "ח", "ט", "י", "כ", "ל", "מ", "נ", "ס", "ע", "פ", "צ", "ק", "ר", "ש", "ת",
	"ך", "ם", "ן", "ף", "ץ",
}

var numberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+[.)\]\s]`),
	regexp.MustCompile(`^\(\d+\)`),
	regexp.MustCompile(`^\[\d+\]`),
	regexp.MustCompile(`^\d+\)`),
	regexp.MustCompile(`^\d+\]`),
	regexp.MustCompile(`^\d+:`),
}

var hebrewPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[\x{0590}-\x{05FF}]+[.)\]\s]`),
	regexp.MustCompile(`^\([\x{0590}-\x{05FF}]+\)`),
	regexp.MustCompile(`^\[[\x{0590}-\x{05FF}]+\]`),
	regexp.MustCompile(`^[\x{0590}-\x{05FF}]+\)`),
	regexp.MustCompile(`^[\x{0590}-\x{05FF}]+\]`),
	regexp.MustCompile(`^[\x{0590}-\x{05FF}]+:`),
}

var (
	leadingPunct = regexp.MustCompile(`^[.)\]:\s]+`)
	whitespace   = regexp.MustCompile(`\s+`)
	nonDigit     = regexp.MustCompile(`[^\d]`)
)

// Detector extracts footnotes from page text.
type Detector struct{}

// NewDetector creates a new footnote detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect scans one page and returns its main text with footnote lines
// removed, plus the extracted footnote records. When nothing is detected
// the page text passes through unchanged.
func (d *Detector) Detect(pageText string, pageNumber int) Detection {
	lines := splitLines(pageText)
	if len(lines) < 3 {
		return Detection{MainText: pageText}
	}

	// The bottom 40% of the page is the candidate footnote region.
	regionStart := len(lines) * 6 / 10
	mainLines := lines[:regionStart]
	remaining := append([]string(nil), lines[regionStart:]...)

	var found []Footnote
	for i := 0; i < len(remaining); i++ {
		fn, ok := extractFromLine(remaining[i], pageNumber)
		if !ok {
			continue
		}

		// Collect continuation lines until the next marker.
		end := i + 1
		for end < len(remaining) && !isMarkerLine(remaining[end]) {
			fn.Text += " " + remaining[end]
			end++
		}

		found = append(found, fn)
		remaining = append(remaining[:i], remaining[end:]...)
		i--
	}

	if len(found) == 0 {
		return Detection{MainText: pageText}
	}

	mainText := strings.Join(append(append([]string(nil), mainLines...), remaining...), "\n")
	found = postProcess(found)
	findReferences(found, mainText)

	return Detection{MainText: mainText, Footnotes: found}
}

// splitLines trims each line and drops empty ones.
func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// extractFromLine returns a footnote if the line opens with a marker.
func extractFromLine(line string, pageNumber int) (Footnote, bool) {
	trimmed := strings.TrimSpace(line)

	// Hebrew letter markers carry the highest confidence.
	for _, letter := range hebrewLetters {
		if !strings.HasPrefix(trimmed, letter) {
			continue
		}
		after := trimmed[len(letter):]
		if after == "" || !strings.ContainsAny(after[:1], ".)]: ") {
			continue
		}
		text := strings.TrimSpace(leadingPunct.ReplaceAllString(strings.TrimSpace(after), ""))
		if text == "" {
			continue
		}
		return Footnote{
			ID:         fmt.Sprintf("fn_%d_%s", pageNumber, letter),
			Marker:     letter,
			Text:       text,
			PageNumber: pageNumber,
			Position:   PositionBottom,
			Confidence: 0.9,
		}, true
	}

	for _, pattern := range numberPatterns {
		marker := pattern.FindString(trimmed)
		if marker == "" {
			continue
		}
		text := strings.TrimSpace(trimmed[len(marker):])
		if text == "" {
			continue
		}
		return Footnote{
			ID:         fmt.Sprintf("fn_%d_%s", pageNumber, nonDigit.ReplaceAllString(marker, "")),
			Marker:     marker,
			Text:       text,
			PageNumber: pageNumber,
			Position:   PositionBottom,
			Confidence: 0.85,
		}, true
	}

	for _, pattern := range hebrewPatterns {
		marker := pattern.FindString(trimmed)
		if marker == "" {
			continue
		}
		text := strings.TrimSpace(trimmed[len(marker):])
		if text == "" {
			continue
		}
		return Footnote{
			ID:         fmt.Sprintf("fn_%d_%s", pageNumber, marker),
			Marker:     marker,
			Text:       text,
			PageNumber: pageNumber,
			Position:   PositionBottom,
			Confidence: 0.8,
		}, true
	}

	return Footnote{}, false
}

// isMarkerLine reports whether a line opens a new footnote.
func isMarkerLine(line string) bool {
	trimmed := strings.TrimSpace(line)

	for _, letter := range hebrewLetters {
		if !strings.HasPrefix(trimmed, letter) {
			continue
		}
		after := trimmed[len(letter):]
		if after != "" && strings.ContainsAny(after[:1], ".)]: ") {
			return true
		}
	}

	for _, pattern := range numberPatterns {
		if pattern.MatchString(trimmed) {
			return true
		}
	}

	return false
}

// postProcess normalizes footnote text and downgrades confidence for
// fragments too short to be real footnotes.
func postProcess(fns []Footnote) []Footnote {
	out := make([]Footnote, len(fns))
	for i, fn := range fns {
		text := strings.TrimSpace(whitespace.ReplaceAllString(fn.Text, " "))
		text = leadingPunct.ReplaceAllString(text, "")
		fn.Text = text
		if len([]rune(text)) <= 10 {
			fn.Confidence *= 0.7
		}
		out[i] = fn
	}
	return out
}

// findReferences records the main-text context around each occurrence of a
// footnote's marker.
func findReferences(fns []Footnote, mainText string) {
	text := []rune(mainText)
	for i := range fns {
		marker := []rune(fns[i].Marker)
		if len(marker) == 0 {
			continue
		}

		var refs []string
		for idx := 0; idx+len(marker) <= len(text); idx++ {
			if string(text[idx:idx+len(marker)]) != string(marker) {
				continue
			}

			start := idx - 50
			if start < 0 {
				start = 0
			}
			end := idx + len(marker) + 50
			if end > len(text) {
				end = len(text)
			}
			refs = append(refs, strings.TrimSpace(string(text[start:end])))
			idx += len(marker) - 1
		}
		fns[i].References = refs
	}
}
