package pipeline

import "github.com/seforimlab/folio/internal/ocr"

// Merge policy constants. These are policy values, not tunables derived
// from data; adjust them here if the corpus ever demands it.
const (
	// needsOCRAvgChars flags a document for OCR when the average
	// character count per physical page falls below it.
	needsOCRAvgChars = 200

	// shortNativeChars is the page length below which OCR output replaces
	// native text outright (given enough confidence).
	shortNativeChars = 100

	// goodNativeChars is the page length above which native text is kept
	// regardless of OCR output.
	goodNativeChars = 200

	// shortReplaceConfidence gates replacement of short native pages.
	shortReplaceConfidence = 50

	// ambiguousReplaceConfidence gates replacement inside the ambiguous
	// length band between shortNativeChars and goodNativeChars.
	ambiguousReplaceConfidence = 60
)

// decideNeedsOCR flags the document for OCR when its average characters
// per physical page is below threshold. The average divides by the full
// page count, so empty pages drag it down.
func decideNeedsOCR(native map[int]string, pageCount int) bool {
	if pageCount == 0 {
		return false
	}
	total := 0
	for _, text := range native {
		total += charCount(text)
	}
	return float64(total)/float64(pageCount) < needsOCRAvgChars
}

// mergePages applies the per-page merge policy over every physical page,
// in order:
//
//	native shorter than shortNativeChars and confidence above
//	shortReplaceConfidence: take the OCR text, post-processed.
//	native longer than goodNativeChars: keep native.
//	otherwise: take the OCR text only if it is longer than native and
//	confidence is above ambiguousReplaceConfidence.
//
// OCR results are matched to pages by page number; a page the engine
// skipped keeps its native text. Pages with no native text (scanned
// pages the extractor found empty) take the short-native branch, which
// is how fully scanned documents acquire text at all.
func mergePages(native map[int]string, results []ocr.PageResult, pageCount int) (map[int]string, map[int]bool) {
	byPage := make(map[int]ocr.PageResult, len(results))
	for _, r := range results {
		byPage[r.PageNumber] = r
	}

	final := make(map[int]string, pageCount)
	enhanced := make(map[int]bool)

	for num := 1; num <= pageCount; num++ {
		nativeText := native[num]
		final[num] = nativeText

		r, ok := byPage[num]
		if !ok {
			continue
		}

		nativeLen := charCount(nativeText)
		switch {
		case nativeLen < shortNativeChars && r.Confidence > shortReplaceConfidence:
			final[num] = ocr.PostProcessHebrew(r.Text)
			enhanced[num] = true
		case nativeLen > goodNativeChars:
			// Native is presumed good quality.
		case charCount(r.Text) > nativeLen && r.Confidence > ambiguousReplaceConfidence:
			final[num] = r.Text
			enhanced[num] = true
		}
	}

	return final, enhanced
}
