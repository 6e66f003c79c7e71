package block

import (
	"fmt"
	"path"
	"testing"

	"go-blockdb/pkg/customerrors"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var testOptions = Options{
	BlockSize:       4096,
	BlockHeaderSize: 24,
	DiskSectorSize:  512,
}

func newTestStorage(t *testing.T) (*Storage, *MemFile) {
	f := NewMemFile()
	s, err := New(f, &testOptions)
	require.NoError(t, err)
	return s, f
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"not sector aligned", Options{BlockSize: 4000, BlockHeaderSize: 24, DiskSectorSize: 512}},
		{"header bigger than block", Options{BlockSize: 512, BlockHeaderSize: 512, DiskSectorSize: 512}},
		{"header too small", Options{BlockSize: 4096, BlockHeaderSize: 16, DiskSectorSize: 512}},
		{"header bigger than sector", Options{BlockSize: 4096, BlockHeaderSize: 600, DiskSectorSize: 512}},
		{"zero sector", Options{BlockSize: 4096, BlockHeaderSize: 24}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := New(NewMemFile(), &c.opts)
			require.ErrorIs(t, err, customerrors.ErrConfiguration)
		})
	}

	s, err := New(NewMemFile(), nil)
	require.NoError(t, err)
	require.Equal(t, DefaultOptions.BlockSize-DefaultOptions.BlockHeaderSize, s.BlockContentSize())
}

func TestStorage_CreateFind(t *testing.T) {
	s, f := newTestStorage(t)

	b, err := s.Create()
	require.NoError(t, err)
	require.EqualValues(t, 0, b.Id())

	size, _ := f.Size()
	require.EqualValues(t, 4096, size)

	b2, err := s.Create()
	require.NoError(t, err)
	require.EqualValues(t, 1, b2.Id())

	same, err := s.Find(0)
	require.NoError(t, err)
	require.Same(t, b, same)

	missing, err := s.Find(2)
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, same.Release())
	require.NoError(t, b.Release())
	require.NoError(t, b2.Release())
	require.Equal(t, 0, s.cached())
}

func TestStorage_CreateMisaligned(t *testing.T) {
	s, f := newTestStorage(t)

	f.Truncate(100)
	_, err := s.Create()
	require.ErrorIs(t, err, customerrors.ErrDataIntegrity)
}

func TestBlock_HeaderPersistedOnRelease(t *testing.T) {
	s, f := newTestStorage(t)

	b, err := s.Create()
	require.NoError(t, err)
	b.SetHeader(NextBlockId, 7)
	b.SetHeader(IsDeleted, 1)
	require.EqualValues(t, 7, b.Header(NextBlockId))

	raw := make([]byte, 4)
	_, err = f.ReadAt(raw, int64(NextBlockId)*4)
	require.NoError(t, err)
	require.EqualValues(t, 0, bin.Uint32(raw), "header must not hit the file before release")

	require.NoError(t, b.Release())

	_, err = f.ReadAt(raw, int64(NextBlockId)*4)
	require.NoError(t, err)
	require.EqualValues(t, 7, bin.Uint32(raw))

	b, err = s.Find(0)
	require.NoError(t, err)
	require.EqualValues(t, 7, b.Header(NextBlockId))
	require.EqualValues(t, 1, b.Header(IsDeleted))
	require.EqualValues(t, 0, b.Header(RecordLength))
	require.NoError(t, b.Release())
}

func TestBlock_ReadWriteAcrossSectors(t *testing.T) {
	s, f := newTestStorage(t)

	_, err := s.Create()
	require.NoError(t, err)
	b, err := s.Create()
	require.NoError(t, err)

	content := make([]byte, s.BlockContentSize())
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, b.Write(content, 0, 0, len(content)))

	got := make([]byte, len(content))
	require.NoError(t, b.Read(got, 0, 0, len(got)))
	require.Equal(t, content, got)

	// spans the first sector boundary
	part := make([]byte, 100)
	require.NoError(t, b.Read(part, 10, 450, 90))
	require.Equal(t, content[450:540], part[10:100])

	require.NoError(t, b.Release())

	// bytes past the first sector were written straight through
	raw := make([]byte, 10)
	_, err = f.ReadAt(raw, 4096+512)
	require.NoError(t, err)
	require.Equal(t, content[488:498], raw)

	b, err = s.Find(1)
	require.NoError(t, err)
	got = make([]byte, len(content))
	require.NoError(t, b.Read(got, 0, 0, len(got)))
	require.Equal(t, content, got)
	require.NoError(t, b.Release())
}

func TestBlock_OutOfRange(t *testing.T) {
	s, _ := newTestStorage(t)

	b, err := s.Create()
	require.NoError(t, err)
	defer b.Release()

	buf := make([]byte, 10)
	err = b.Read(buf, 0, s.BlockContentSize()-5, 10)
	require.ErrorIs(t, err, customerrors.ErrOutOfRange)

	err = b.Write(buf, 5, 0, 10)
	require.ErrorIs(t, err, customerrors.ErrOutOfRange)

	err = b.Read(buf, 0, -1, 1)
	require.ErrorIs(t, err, customerrors.ErrOutOfRange)
}

func TestBlock_UseAfterRelease(t *testing.T) {
	s, _ := newTestStorage(t)

	b, err := s.Create()
	require.NoError(t, err)
	require.NoError(t, b.Release())

	err = b.Release()
	require.True(t, errors.Is(err, customerrors.ErrUseAfterRelease))

	err = b.Write([]byte{1}, 0, 0, 1)
	require.ErrorIs(t, err, customerrors.ErrUseAfterRelease)

	require.Panics(t, func() { b.SetHeader(RecordLength, 1) })
	require.Panics(t, func() { b.Header(RecordLength) })
	require.NotPanics(t, func() { _ = fmt.Sprintf("%v", b) })
	require.Equal(t, fmt.Sprintf("Block{id=%d, released}", b.Id()), b.String())
}

func TestStorage_Reopen(t *testing.T) {
	fileName := path.Join(t.TempDir(), "blocks.bin")

	s, err := Open(fileName, &testOptions)
	require.NoError(t, err)

	b, err := s.Create()
	require.NoError(t, err)
	b.SetHeader(ContentLength, 3)
	require.NoError(t, b.Write([]byte("abc"), 0, 1000, 3))
	require.NoError(t, s.Close())

	_, err = s.Find(0)
	require.ErrorIs(t, err, customerrors.ErrUseAfterRelease)

	s, err = Open(fileName, &testOptions)
	require.NoError(t, err)
	defer s.Close()

	b, err = s.Find(0)
	require.NoError(t, err)
	require.EqualValues(t, 3, b.Header(ContentLength))
	got := make([]byte, 3)
	require.NoError(t, b.Read(got, 0, 1000, 3))
	require.Equal(t, "abc", string(got))
	require.NoError(t, b.Release())
}
