package document

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// chunkNamespace scopes the name-based UUIDs assigned to chunks.
var chunkNamespace = uuid.MustParse("5c0f7a52-3f0e-4d8e-9a57-6b1f2d3c4e5a")

// ChunkID derives a stable identifier for the index-th window of a page.
// Rebuilding the same corpus with the same settings yields the same IDs.
func ChunkID(source string, page, index int) string {
	name := fmt.Sprintf("%s/%d/%d", source, page, index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// Fingerprint computes the BLAKE2b-256 digest of a file's contents.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("creating hash: %w", err)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
