package block

import (
	"io"
	"os"
	"sync"
)

// File is the random access storage a block storage lives in. *os.File
// based files come from OpenFile, in-memory ones from NewMemFile.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Size() (int64, error)
	Sync() error
}

// OpenFile opens (or creates) the named file for read/write block access.
func OpenFile(fileName string, mode os.FileMode) (File, error) {
	f, err := os.OpenFile(fileName, os.O_RDWR|os.O_CREATE, mode)
	if err != nil {
		return nil, err
	}
	return &osFile{f}, nil
}

type osFile struct {
	*os.File
}

func (f *osFile) Size() (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// NewMemFile returns an empty in-memory File. Useful for tests and
// throwaway indexes.
func NewMemFile() *MemFile {
	return &MemFile{}
}

// MemFile is a File backed by a byte slice.
type MemFile struct {
	mu   sync.Mutex
	data []byte
}

func (m *MemFile) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 {
		return 0, os.ErrInvalid
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemFile) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 {
		return 0, os.ErrInvalid
	}
	if end := off + int64(len(p)); end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	return copy(m.data[off:], p), nil
}

func (m *MemFile) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data)), nil
}

// Truncate resizes the file. It exists so tests can simulate torn files.
func (m *MemFile) Truncate(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
}

func (m *MemFile) Sync() error  { return nil }
func (m *MemFile) Close() error { return nil }
