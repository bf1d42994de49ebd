// Package pdf loads a directory of PDF files into page text, recovering
// pages without a text layer through OCR.
package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matsen/lungrag/internal/document"
	"github.com/matsen/lungrag/internal/logger"
)

// FileReport summarizes how one file was loaded.
type FileReport struct {
	Document     document.SourceDocument `json:"document"`
	Pages        int                     `json:"pages"`
	OCRPages     int                     `json:"ocr_pages"`
	DroppedPages int                     `json:"dropped_pages"`
	Err          error                   `json:"-"`
}

// ErrorMessage returns the report's error text, or "" when the file
// loaded cleanly.
func (r FileReport) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// MarshalJSON includes the error text as "error".
func (r FileReport) MarshalJSON() ([]byte, error) {
	type plain FileReport
	return json.Marshal(struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain(r), r.ErrorMessage()})
}

// LoadResult is the output of Loader.Load.
type LoadResult struct {
	Pages []document.Page
	Files []FileReport
}

// OCRPages returns the number of pages recovered through OCR.
func (r *LoadResult) OCRPages() int {
	n := 0
	for _, f := range r.Files {
		n += f.OCRPages
	}
	return n
}

// Documents returns the source documents in load order.
func (r *LoadResult) Documents() []document.SourceDocument {
	docs := make([]document.SourceDocument, len(r.Files))
	for i, f := range r.Files {
		docs[i] = f.Document
	}
	return docs
}

// Loader reads every *.pdf file of a directory.
type Loader struct {
	extractor  TextExtractor
	rasterizer Rasterizer
	recognizer Recognizer
	ocr        bool
	log        *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithExtractor replaces the text-layer extractor.
func WithExtractor(e TextExtractor) LoaderOption {
	return func(l *Loader) { l.extractor = e }
}

// WithOCR sets the OCR backends. Passing a nil rasterizer or recognizer
// disables OCR.
func WithOCR(r Rasterizer, rec Recognizer) LoaderOption {
	return func(l *Loader) {
		l.rasterizer = r
		l.recognizer = rec
		l.ocr = r != nil && rec != nil
	}
}

// WithoutOCR drops pages without a text layer instead of recognizing them.
func WithoutOCR() LoaderOption {
	return func(l *Loader) { l.ocr = false }
}

// NewLoader returns a loader using the text-layer extractor and, unless
// configured otherwise, go-fitz plus tesseract for OCR.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		extractor:  TextLayerExtractor{},
		rasterizer: NewFitzRasterizer(DefaultDPI),
		recognizer: NewTesseractRecognizer("", "", 0),
		ocr:        true,
		log:        logger.WithComponent("loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListPDFs returns the *.pdf files directly inside dir, sorted by name.
// The extension match is case-insensitive.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads all PDFs in dir. Failures of single files are recorded in
// their FileReport and never abort the load; the load fails only when the
// directory is unreadable or no page of any file has text; in the latter
// case the per-file reports are still returned alongside ErrNoUsableText.
func (l *Loader) Load(ctx context.Context, dir string) (*LoadResult, error) {
	paths, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages, report := l.loadFile(ctx, path)
		result.Pages = append(result.Pages, pages...)
		result.Files = append(result.Files, report)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(result.Pages) == 0 {
		return result, fmt.Errorf("%w: %d files in %s", ErrNoUsableText, len(paths), dir)
	}
	return result, nil
}

func (l *Loader) loadFile(ctx context.Context, path string) ([]document.Page, FileReport) {
	name := filepath.Base(path)
	log := l.log.With("file", name)
	report := FileReport{Document: document.SourceDocument{Name: name, Path: path}}

	fp, err := document.Fingerprint(path)
	if err != nil {
		report.Err = fmt.Errorf("%w: %s: %v", ErrIO, name, err)
		log.Warn("skipping unreadable file", "error", err)
		return nil, report
	}
	report.Document.Fingerprint = fp

	texts, extractErr := l.extractor.ExtractPages(path)
	if extractErr != nil {
		log.Warn("text extraction failed", "error", extractErr)
	}

	byNumber := make(map[int]document.Page)
	var missing []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			missing = append(missing, i+1)
			continue
		}
		byNumber[i+1] = document.Page{Source: name, Number: i + 1, Text: text, Origin: document.OriginText}
	}

	needOCR := extractErr != nil || len(missing) > 0
	switch {
	case !needOCR:
	case !l.ocr:
		report.DroppedPages = len(missing)
		if extractErr != nil {
			report.Err = fmt.Errorf("%w: %s: %v", ErrIO, name, extractErr)
		}
	default:
		if extractErr != nil {
			missing = nil // page count comes from the renderer
		}
		log.Info("falling back to OCR", "pages", len(missing), "whole_file", extractErr != nil)
		recovered, dropped, err := l.recognizeFile(ctx, path, missing)
		for _, p := range recovered {
			p.Source = name
			byNumber[p.Number] = p
		}
		report.OCRPages = len(recovered)
		report.DroppedPages = dropped
		if err != nil {
			report.Err = fmt.Errorf("%s: %w", name, err)
			log.Warn("ocr failed", "error", err)
		}
	}

	numbers := make([]int, 0, len(byNumber))
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	pages := make([]document.Page, len(numbers))
	for i, n := range numbers {
		pages[i] = byNumber[n]
	}
	report.Pages = len(pages)

	log.Debug("loaded file", "pages", report.Pages, "ocr_pages", report.OCRPages, "dropped", report.DroppedPages)
	return pages, report
}

// recognizeFile OCRs the given 1-based page numbers, or every page when
// numbers is nil. It returns recovered pages, the count of pages that
// yielded no text, and the first OCR error wrapped in ErrOCR.
func (l *Loader) recognizeFile(ctx context.Context, path string, numbers []int) ([]document.Page, int, error) {
	doc, err := l.rasterizer.Open(path)
	if err != nil {
		return nil, len(numbers), fmt.Errorf("%w: %v", ErrOCR, err)
	}
	defer doc.Close()

	if numbers == nil {
		for i := 1; i <= doc.NumPage(); i++ {
			numbers = append(numbers, i)
		}
	}

	var (
		pages    []document.Page
		dropped  int
		firstErr error
	)
	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return pages, dropped, err
		}
		text, err := l.recognizePage(ctx, doc, n)
		if err != nil {
			dropped++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if strings.TrimSpace(text) == "" {
			dropped++
			continue
		}
		pages = append(pages, document.Page{Number: n, Text: text, Origin: document.OriginOCR})
	}
	return pages, dropped, firstErr
}

func (l *Loader) recognizePage(ctx context.Context, doc PageRenderer, number int) (string, error) {
	if number < 1 || number > doc.NumPage() {
		return "", fmt.Errorf("%w: page %d out of range", ErrOCR, number)
	}
	img, err := doc.RenderPNG(number - 1)
	if err != nil {
		return "", fmt.Errorf("%w: rendering page %d: %v", ErrOCR, number, err)
	}
	text, err := l.recognizer.Recognize(ctx, img)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: recognizing page %d: %v", ErrOCR, number, err)
	}
	return text, nil
}
