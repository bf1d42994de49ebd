package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matsen/lungrag/internal/pdf/pdftest"
)

func minimalPDF(pageTexts ...string) []byte {
	return pdftest.Minimal(pageTexts...)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}
