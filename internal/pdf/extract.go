package pdf

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// TextExtractor reads the embedded text layer of a PDF, one string per
// page in page order. Pages without a text layer yield "".
type TextExtractor interface {
	ExtractPages(path string) ([]string, error)
}

// TextLayerExtractor extracts text with github.com/ledongthuc/pdf.
type TextLayerExtractor struct{}

// ExtractPages implements TextExtractor. Malformed files that make the
// parser panic are reported as errors.
func (TextLayerExtractor) ExtractPages(path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parsing %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Unreadable text layer; leave the page for OCR.
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}
