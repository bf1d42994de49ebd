package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Errors returned by Save and Load.
var (
	ErrNotFound           = errors.New("vector index file not found")
	ErrCorruptIndex       = errors.New("vector index file is corrupt")
	ErrUnsupportedVersion = errors.New("unsupported index version")
)

const (
	// CurrentVersion is the on-disk format version. Increment it when the
	// layout changes.
	CurrentVersion = 1

	// maxStringLen bounds any length-prefixed string read from disk.
	maxStringLen = 64 << 20
)

// magic opens every index file.
var magic = [8]byte{'L', 'R', 'A', 'G', 'I', 'D', 'X', 0}

// File layout, little-endian:
//
//	magic [8]byte
//	version uint32
//	dims uint32
//	count uint64
//	created int64 (unix nanoseconds)
//	model string
//	count × { id string, text string, source string, page uint32, dims × float32 }
//	crc32 uint32 (IEEE, over every preceding byte)
//
// Strings are a uint32 byte length followed by UTF-8 bytes.

// Save writes the index to path. The file is written to a uniquely named
// temporary sibling and renamed into place, so readers never see a partial
// file and concurrent writers never share a temp file.
func (idx *Index) Save(path string) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".lungrag-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := f.Name()

	closed := false
	defer func() {
		if !closed {
			f.Close()
		}
		if err != nil {
			os.Remove(tempPath)
		}
	}()

	if err := f.Chmod(0644); err != nil {
		return fmt.Errorf("setting index permissions: %w", err)
	}

	bw := bufio.NewWriter(f)
	crc := crc32.NewIEEE()
	enc := &encoder{w: io.MultiWriter(bw, crc)}

	enc.bytes(magic[:])
	enc.u32(CurrentVersion)
	enc.u32(uint32(idx.dims))
	enc.u64(uint64(len(idx.entries)))
	enc.i64(idx.createdAt.UnixNano())
	enc.str(idx.model)
	for _, e := range idx.entries {
		enc.str(e.ID)
		enc.str(e.Text)
		enc.str(e.Source)
		enc.u32(uint32(e.Page))
		for _, v := range e.Vector {
			enc.u32(math.Float32bits(v))
		}
	}
	if enc.err != nil {
		return fmt.Errorf("encoding index: %w", enc.err)
	}

	if err := binary.Write(bw, binary.LittleEndian, crc.Sum32()); err != nil {
		return fmt.Errorf("writing checksum: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing index: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing index: %w", err)
	}

	closed = true
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Load reads an index written by Save.
//
// It returns ErrNotFound if path does not exist and ErrCorruptIndex if the
// file cannot be decoded into a consistent index. A file written by another
// format version returns an error matching both ErrUnsupportedVersion and
// ErrCorruptIndex.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading index file info: %w", err)
	}
	size := info.Size()

	crc := crc32.NewIEEE()
	dec := &decoder{r: io.TeeReader(bufio.NewReader(f), crc)}

	var m [8]byte
	dec.bytes(m[:])
	if dec.err != nil || m != magic {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptIndex)
	}

	version := dec.u32()
	if dec.err == nil && version != CurrentVersion {
		return nil, fmt.Errorf("%w: %w: got %d, want %d (rebuild the index)",
			ErrCorruptIndex, ErrUnsupportedVersion, version, CurrentVersion)
	}

	dims := int(dec.u32())
	count := dec.u64()
	created := dec.i64()
	model := dec.str()
	if dec.err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCorruptIndex, dec.err)
	}

	// Each entry needs at least three string lengths, a page number and
	// its vector, so a count the file cannot hold means corruption.
	minEntry := uint64(16 + 4*dims)
	if count > 0 && (dims == 0 || count > uint64(size)/minEntry) {
		return nil, fmt.Errorf("%w: %d entries of %d dimensions cannot fit in %d bytes",
			ErrCorruptIndex, count, dims, size)
	}

	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		e := Entry{
			ID:     dec.str(),
			Text:   dec.str(),
			Source: dec.str(),
			Page:   int(dec.u32()),
		}
		e.Vector = make([]float32, dims)
		for j := range e.Vector {
			e.Vector[j] = math.Float32frombits(dec.u32())
		}
		if dec.err != nil {
			return nil, fmt.Errorf("%w: reading entry %d: %v", ErrCorruptIndex, i, dec.err)
		}
		entries = append(entries, e)
	}

	want := crc.Sum32()
	var got uint32
	if err := binary.Read(dec.r, binary.LittleEndian, &got); err != nil {
		return nil, fmt.Errorf("%w: reading checksum: %v", ErrCorruptIndex, err)
	}
	if got != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}
	var extra [1]byte
	if n, _ := dec.r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("%w: trailing data after checksum", ErrCorruptIndex)
	}

	idx := New(model)
	idx.createdAt = time.Unix(0, created).UTC()
	if err := idx.InsertBatch(entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return idx, nil
}

// FileSize returns the size of the index file in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// Exists checks if an index file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// encoder writes little-endian fields, remembering the first error.
type encoder struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.bytes(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	e.bytes(e.buf[:8])
}

func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}

// decoder mirrors encoder. After the first error every read returns zero.
type decoder struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (d *decoder) bytes(b []byte) {
	if d.err != nil {
		return
	}
	_, d.err = io.ReadFull(d.r, b)
}

func (d *decoder) u32() uint32 {
	d.bytes(d.buf[:4])
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(d.buf[:4])
}

func (d *decoder) u64() uint64 {
	d.bytes(d.buf[:8])
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(d.buf[:8])
}

func (d *decoder) i64() int64 { return int64(d.u64()) }

func (d *decoder) str() string {
	n := d.u32()
	if d.err != nil {
		return ""
	}
	if n > maxStringLen {
		d.err = fmt.Errorf("string length %d exceeds limit", n)
		return ""
	}
	b := make([]byte, n)
	d.bytes(b)
	if d.err != nil {
		return ""
	}
	return string(b)
}
