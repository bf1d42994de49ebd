package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
)

const (
	// DefaultDPI is the rasterization resolution used for OCR.
	DefaultDPI = 300

	// DefaultTesseractPath is the tesseract binary looked up on $PATH.
	DefaultTesseractPath = "tesseract"

	// DefaultLanguage is the tesseract language pack.
	DefaultLanguage = "eng"

	// DefaultOCRTimeout bounds a single page recognition.
	DefaultOCRTimeout = 2 * time.Minute
)

// Rasterizer opens a PDF for page rendering.
type Rasterizer interface {
	Open(path string) (PageRenderer, error)
}

// PageRenderer renders pages of one opened document. Page indexes are
// zero-based.
type PageRenderer interface {
	NumPage() int
	RenderPNG(page int) ([]byte, error)
	Close() error
}

// Recognizer turns a page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct {
	DPI float64
}

// NewFitzRasterizer returns a rasterizer at the given resolution; a
// non-positive dpi selects DefaultDPI.
func NewFitzRasterizer(dpi float64) *FitzRasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzRasterizer{DPI: dpi}
}

// Open implements Rasterizer.
func (r *FitzRasterizer) Open(path string) (PageRenderer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s for rendering: %w", path, err)
	}
	return &fitzDocument{doc: doc, dpi: r.DPI}, nil
}

type fitzDocument struct {
	doc *fitz.Document
	dpi float64
}

func (d *fitzDocument) NumPage() int { return d.doc.NumPage() }

func (d *fitzDocument) RenderPNG(page int) ([]byte, error) {
	return d.doc.ImagePNG(page, d.dpi)
}

func (d *fitzDocument) Close() error { return d.doc.Close() }

// TesseractRecognizer runs the tesseract CLI, feeding the image on stdin
// and reading text from stdout.
type TesseractRecognizer struct {
	Path     string
	Language string
	Timeout  time.Duration
}

// NewTesseractRecognizer returns a recognizer with defaults applied to
// empty fields.
func NewTesseractRecognizer(path, language string, timeout time.Duration) *TesseractRecognizer {
	if path == "" {
		path = DefaultTesseractPath
	}
	if language == "" {
		language = DefaultLanguage
	}
	if timeout <= 0 {
		timeout = DefaultOCRTimeout
	}
	return &TesseractRecognizer{Path: path, Language: language, Timeout: timeout}
}

// Recognize implements Recognizer.
func (t *TesseractRecognizer) Recognize(ctx context.Context, png []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.Path, "stdin", "stdout", "-l", t.Language)
	cmd.Stdin = bytes.NewReader(png)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("tesseract timed out after %s", t.Timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("tesseract: %s", msg)
		}
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
}

// Available reports whether the tesseract binary can be found.
func (t *TesseractRecognizer) Available() error {
	if _, err := exec.LookPath(t.Path); err != nil {
		return fmt.Errorf("tesseract not found: %w", err)
	}
	return nil
}
