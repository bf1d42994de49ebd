package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matsen/lungrag/internal/document"
)

// fakeExtractor returns canned page texts keyed by file base name.
type fakeExtractor struct {
	pages map[string][]string
	errs  map[string]error
}

func (f fakeExtractor) ExtractPages(path string) ([]string, error) {
	name := filepath.Base(path)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return f.pages[name], nil
}

// fakeRasterizer renders page i of file "x.pdf" as the bytes "x.pdf#i".
type fakeRasterizer struct {
	numPages map[string]int
	openErr  map[string]error
	opened   []string
}

func (f *fakeRasterizer) Open(path string) (PageRenderer, error) {
	name := filepath.Base(path)
	f.opened = append(f.opened, name)
	if err := f.openErr[name]; err != nil {
		return nil, err
	}
	return fakeRenderer{name: name, n: f.numPages[name]}, nil
}

type fakeRenderer struct {
	name string
	n    int
}

func (r fakeRenderer) NumPage() int { return r.n }
func (r fakeRenderer) RenderPNG(page int) ([]byte, error) {
	return []byte(fmt.Sprintf("%s#%d", r.name, page)), nil
}
func (r fakeRenderer) Close() error { return nil }

// fakeRecognizer maps rendered images to text.
type fakeRecognizer struct {
	text map[string]string
	errs map[string]error
}

func (f fakeRecognizer) Recognize(ctx context.Context, png []byte) (string, error) {
	if err := f.errs[string(png)]; err != nil {
		return "", err
	}
	return f.text[string(png)], nil
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		writeFile(t, dir, name, []byte("%PDF-stub "+name))
	}
}

func pageKeys(pages []document.Page) []string {
	keys := make([]string, len(pages))
	for i, p := range pages {
		keys[i] = fmt.Sprintf("%s:%d:%s", p.Source, p.Number, p.Origin)
	}
	return keys
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf", "b.PDF", "c.pdf", "notes.txt")
	if err := os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}

	extractor := fakeExtractor{
		pages: map[string][]string{
			"a.pdf": {"alveoli", "bronchi"},
			"b.PDF": {"pleura", "   ", "trachea"},
		},
		errs: map[string]error{"c.pdf": errors.New("no xref")},
	}
	rasterizer := &fakeRasterizer{numPages: map[string]int{"b.PDF": 3, "c.pdf": 2}}
	recognizer := fakeRecognizer{text: map[string]string{
		"b.PDF#1": "scanned figure caption",
		"c.pdf#0": "scanned page one",
		"c.pdf#1": "scanned page two",
	}}

	l := NewLoader(WithExtractor(extractor), WithOCR(rasterizer, recognizer))
	res, err := l.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{
		"a.pdf:1:text", "a.pdf:2:text",
		"b.PDF:1:text", "b.PDF:2:ocr", "b.PDF:3:text",
		"c.pdf:1:ocr", "c.pdf:2:ocr",
	}
	got := pageKeys(res.Pages)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("pages = %v, want %v", got, want)
	}
	if res.Pages[3].Text != "scanned figure caption" {
		t.Errorf("OCR page text = %q", res.Pages[3].Text)
	}

	if len(res.Files) != 3 {
		t.Fatalf("len(Files) = %d, want 3", len(res.Files))
	}
	if got := res.Files[1]; got.Pages != 3 || got.OCRPages != 1 || got.DroppedPages != 0 {
		t.Errorf("b.PDF report = %+v", got)
	}
	if got := res.Files[2]; got.Pages != 2 || got.OCRPages != 2 || got.Err != nil {
		t.Errorf("c.pdf report = %+v", got)
	}
	if res.OCRPages() != 3 {
		t.Errorf("OCRPages() = %d, want 3", res.OCRPages())
	}
	if fp := res.Files[0].Document.Fingerprint; len(fp) != 64 {
		t.Errorf("fingerprint = %q, want 64 hex chars", fp)
	}
	if docs := res.Documents(); len(docs) != 3 || docs[0].Name != "a.pdf" {
		t.Errorf("Documents() = %+v", docs)
	}
	if strings.Join(rasterizer.opened, ",") != "b.PDF,c.pdf" {
		t.Errorf("rasterizer opened %v, want only files needing OCR", rasterizer.opened)
	}
}

func TestLoader_OCRFailures(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "good.pdf", "render.pdf", "scan.pdf")

	extractor := fakeExtractor{
		pages: map[string][]string{
			"good.pdf":   {"interstitial markings"},
			"render.pdf": {""},
			"scan.pdf":   {"", "", "cardiomegaly"},
		},
	}
	rasterizer := &fakeRasterizer{
		numPages: map[string]int{"scan.pdf": 3},
		openErr:  map[string]error{"render.pdf": errors.New("mupdf: cannot open")},
	}
	recognizer := fakeRecognizer{
		text: map[string]string{"scan.pdf#1": "  \n "},
		errs: map[string]error{"scan.pdf#0": errors.New("tesseract crashed")},
	}

	res, err := NewLoader(WithExtractor(extractor), WithOCR(rasterizer, recognizer)).Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got := pageKeys(res.Pages)
	want := []string{"good.pdf:1:text", "scan.pdf:3:text"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("pages = %v, want %v", got, want)
	}

	tests := []struct {
		name    string
		report  FileReport
		dropped int
		wantErr error
	}{
		{name: "clean", report: res.Files[0], dropped: 0},
		{name: "open failure", report: res.Files[1], dropped: 1, wantErr: ErrOCR},
		{name: "recognize failure and blank", report: res.Files[2], dropped: 2, wantErr: ErrOCR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.report.DroppedPages != tt.dropped {
				t.Errorf("DroppedPages = %d, want %d", tt.report.DroppedPages, tt.dropped)
			}
			if tt.wantErr == nil {
				if tt.report.Err != nil || tt.report.ErrorMessage() != "" {
					t.Errorf("Err = %v, want nil", tt.report.Err)
				}
				return
			}
			if !errors.Is(tt.report.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", tt.report.Err, tt.wantErr)
			}
		})
	}
}

func TestLoader_WithoutOCR(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf", "broken.pdf")

	extractor := fakeExtractor{
		pages: map[string][]string{"a.pdf": {"", "hilar lymphadenopathy", ""}},
		errs:  map[string]error{"broken.pdf": errors.New("bad header")},
	}
	rasterizer := &fakeRasterizer{}

	res, err := NewLoader(WithExtractor(extractor), WithOCR(rasterizer, fakeRecognizer{}), WithoutOCR()).
		Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := pageKeys(res.Pages); len(got) != 1 || got[0] != "a.pdf:2:text" {
		t.Errorf("pages = %v", got)
	}
	if res.Files[0].DroppedPages != 2 {
		t.Errorf("DroppedPages = %d, want 2", res.Files[0].DroppedPages)
	}
	if !errors.Is(res.Files[1].Err, ErrIO) {
		t.Errorf("broken.pdf Err = %v, want ErrIO", res.Files[1].Err)
	}
	if len(rasterizer.opened) != 0 {
		t.Errorf("rasterizer used with OCR disabled: %v", rasterizer.opened)
	}
}

func TestLoader_NoUsableText(t *testing.T) {
	tests := []struct {
		name  string
		files []string
	}{
		{name: "empty directory"},
		{name: "only blank pages", files: []string{"blank.pdf"}},
		{name: "no pdf files", files: []string{"readme.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			touch(t, dir, tt.files...)
			extractor := fakeExtractor{pages: map[string][]string{"blank.pdf": {"", " "}}}

			res, err := NewLoader(WithExtractor(extractor), WithoutOCR()).Load(context.Background(), dir)
			if !errors.Is(err, ErrNoUsableText) {
				t.Fatalf("Load() error = %v, want ErrNoUsableText", err)
			}
			if res == nil {
				t.Fatal("Load() should return per-file reports with ErrNoUsableText")
			}
		})
	}
}

func TestLoader_UnreadableDirectory(t *testing.T) {
	_, err := NewLoader(WithoutOCR()).Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrIO) {
		t.Errorf("Load() error = %v, want ErrIO", err)
	}
}

func TestLoader_Cancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := fakeExtractor{pages: map[string][]string{"a.pdf": {"text"}}}
	if _, err := NewLoader(WithExtractor(extractor)).Load(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestLoader_RealExtractor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guideline.pdf", minimalPDF("Pneumonia is an infection of the lungs", ""))

	res, err := NewLoader(WithoutOCR()).Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("len(Pages) = %d, want 1", len(res.Pages))
	}
	p := res.Pages[0]
	if p.Source != "guideline.pdf" || p.Number != 1 || p.Origin != document.OriginText {
		t.Errorf("page = %+v", p)
	}
	if !strings.Contains(p.Text, "infection of the lungs") {
		t.Errorf("Text = %q", p.Text)
	}
	if res.Files[0].DroppedPages != 1 {
		t.Errorf("DroppedPages = %d, want 1", res.Files[0].DroppedPages)
	}
}

func TestNewTesseractRecognizer_Defaults(t *testing.T) {
	r := NewTesseractRecognizer("", "", 0)
	if r.Path != DefaultTesseractPath || r.Language != DefaultLanguage || r.Timeout != DefaultOCRTimeout {
		t.Errorf("defaults = %+v", r)
	}
	if NewFitzRasterizer(0).DPI != DefaultDPI {
		t.Error("NewFitzRasterizer(0) should use DefaultDPI")
	}
}

func TestTesseractRecognizer_MissingBinary(t *testing.T) {
	r := NewTesseractRecognizer(filepath.Join(t.TempDir(), "no-tesseract"), "eng", 0)
	if err := r.Available(); err == nil {
		t.Error("Available() should fail for a missing binary")
	}
	if _, err := r.Recognize(context.Background(), []byte("png")); err == nil {
		t.Error("Recognize() should fail for a missing binary")
	}
}

func TestFileReport_MarshalJSON(t *testing.T) {
	failed := FileReport{Document: document.SourceDocument{Name: "a.pdf"}, Pages: 2, Err: ErrOCR}
	b, err := json.Marshal(failed)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"error":"pdf: ocr failure"`, `"pages":2`, `"a.pdf"`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("JSON %s missing %s", b, want)
		}
	}

	clean, err := json.Marshal(FileReport{Pages: 1})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(clean), `"error"`) {
		t.Errorf("clean report JSON %s should omit error", clean)
	}
}
