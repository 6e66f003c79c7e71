package block

import (
	"encoding/binary"
	"fmt"

	"go-blockdb/pkg/customerrors"
	"go-blockdb/util/helpers"

	"github.com/pkg/errors"
)

// bin is the byte order used for all header fields.
var bin = binary.LittleEndian

// HeaderField identifies one of the fixed-width fields at the start of a
// block. Field i lives at byte offset i*4 of the first sector.
type HeaderField int

const (
	RecordLength HeaderField = iota
	ContentLength
	NextBlockId
	PreviousBlockId
	IsDeleted

	// HeaderFieldCount is the number of header fields in use.
	HeaderFieldCount = 5
)

const headerFieldSize = 4

func (f HeaderField) String() string {
	switch f {
	case RecordLength:
		return "RecordLength"
	case ContentLength:
		return "ContentLength"
	case NextBlockId:
		return "NextBlockId"
	case PreviousBlockId:
		return "PreviousBlockId"
	case IsDeleted:
		return "IsDeleted"
	default:
		return fmt.Sprintf("HeaderField(%d)", int(f))
	}
}

// Block is the in-memory view of one fixed-size unit of the storage file.
// The first sector (header + the beginning of the content) is cached while
// the block is held; the rest of the content is read and written straight
// through to the file. Header changes are persisted only when the last
// holder releases the block.
type Block struct {
	id      uint32
	storage *Storage

	firstSector []byte
	headers     [HeaderFieldCount]uint32
	loaded      [HeaderFieldCount]bool
	dirty       bool
	refs        int
}

func newBlock(s *Storage, id uint32, firstSector []byte) *Block {
	return &Block{
		id:          id,
		storage:     s,
		firstSector: firstSector,
		refs:        1,
	}
}

// Id returns the block id. It is stable for the lifetime of the file.
func (b *Block) Id() uint32 { return b.id }

// Header returns the value of the given header field. Like SetHeader it
// panics on a released block.
func (b *Block) Header(field HeaderField) uint32 {
	b.mustBeHeld()
	if !b.loaded[field] {
		off := int(field) * headerFieldSize
		b.headers[field] = bin.Uint32(b.firstSector[off : off+headerFieldSize])
		b.loaded[field] = true
	}
	return b.headers[field]
}

// SetHeader sets the given header field. The change is kept in the cached
// first sector until the block is released.
func (b *Block) SetHeader(field HeaderField, value uint32) {
	b.mustBeHeld()
	off := int(field) * headerFieldSize
	bin.PutUint32(b.firstSector[off:off+headerFieldSize], value)
	b.headers[field] = value
	b.loaded[field] = true
	b.dirty = true
}

// Read copies count bytes of block content starting at srcOffset into
// dst[dstOffset:].
func (b *Block) Read(dst []byte, dstOffset, srcOffset, count int) error {
	if err := b.checkAccess(len(dst), dstOffset, srcOffset, count); err != nil {
		return errors.Wrap(err, "block read")
	}

	s := b.storage
	n := 0
	if srcOffset < s.firstSectorContent() {
		n = helpers.Min(count, s.firstSectorContent()-srcOffset)
		start := s.headerSize + srcOffset
		copy(dst[dstOffset:dstOffset+n], b.firstSector[start:start+n])
	}

	if n < count {
		pos := b.contentPos(srcOffset + n)
		if _, err := s.file.ReadAt(dst[dstOffset+n:dstOffset+count], pos); err != nil {
			return errors.Wrapf(err, "failed to read content of block %d at %d", b.id, pos)
		}
	}
	return nil
}

// Write copies count bytes from src[srcOffset:] into the block content
// starting at dstOffset.
func (b *Block) Write(src []byte, srcOffset, dstOffset, count int) error {
	if err := b.checkAccess(len(src), srcOffset, dstOffset, count); err != nil {
		return errors.Wrap(err, "block write")
	}

	s := b.storage
	n := 0
	if dstOffset < s.firstSectorContent() {
		n = helpers.Min(count, s.firstSectorContent()-dstOffset)
		start := s.headerSize + dstOffset
		copy(b.firstSector[start:start+n], src[srcOffset:srcOffset+n])
		b.dirty = true
	}

	if n < count {
		pos := b.contentPos(dstOffset + n)
		if _, err := s.file.WriteAt(src[srcOffset+n:srcOffset+count], pos); err != nil {
			return errors.Wrapf(err, "failed to write content of block %d at %d", b.id, pos)
		}
	}
	return nil
}

// Release gives the block back to the storage. When the last holder
// releases it, a modified first sector is written to the file and the
// block is dropped from the storage cache.
func (b *Block) Release() error {
	if b.refs <= 0 {
		return errors.Wrapf(customerrors.ErrUseAfterRelease, "block %d released twice", b.id)
	}

	b.refs--
	if b.refs > 0 {
		return nil
	}
	return b.storage.release(b)
}

func (b *Block) String() string {
	if b.refs <= 0 {
		return fmt.Sprintf("Block{id=%d, released}", b.id)
	}
	return fmt.Sprintf(
		"Block{id=%d, len=%d, content=%d, next=%d, prev=%d, deleted=%d}",
		b.id,
		b.Header(RecordLength),
		b.Header(ContentLength),
		b.Header(NextBlockId),
		b.Header(PreviousBlockId),
		b.Header(IsDeleted),
	)
}

// flush writes the first sector back if it was modified.
func (b *Block) flush() error {
	if !b.dirty {
		return nil
	}

	s := b.storage
	if _, err := s.file.WriteAt(b.firstSector, b.pos()); err != nil {
		return errors.Wrapf(err, "failed to flush header of block %d", b.id)
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync block %d", b.id)
	}
	b.dirty = false
	return nil
}

func (b *Block) mustBeHeld() {
	if b.refs <= 0 {
		panic(errors.Wrapf(customerrors.ErrUseAfterRelease, "block %d", b.id))
	}
}

func (b *Block) checkAccess(bufLen, bufOffset, contentOffset, count int) error {
	if b.refs <= 0 {
		return errors.Wrapf(customerrors.ErrUseAfterRelease, "block %d", b.id)
	}
	if bufOffset < 0 || contentOffset < 0 || count < 0 {
		return errors.Wrapf(customerrors.ErrOutOfRange,
			"negative offset or count (buf=%d, content=%d, count=%d)", bufOffset, contentOffset, count)
	}
	if contentOffset+count > b.storage.contentSize {
		return errors.Wrapf(customerrors.ErrOutOfRange,
			"content range [%d, %d) exceeds block content size %d",
			contentOffset, contentOffset+count, b.storage.contentSize)
	}
	if bufOffset+count > bufLen {
		return errors.Wrapf(customerrors.ErrOutOfRange,
			"buffer range [%d, %d) exceeds buffer length %d", bufOffset, bufOffset+count, bufLen)
	}
	return nil
}

// pos returns the file offset of the block.
func (b *Block) pos() int64 {
	return int64(b.id) * int64(b.storage.blockSize)
}

// contentPos returns the file offset of a content byte that lives past the
// first sector.
func (b *Block) contentPos(contentOffset int) int64 {
	s := b.storage
	return b.pos() + int64(s.sectorSize) + int64(contentOffset-s.firstSectorContent())
}
