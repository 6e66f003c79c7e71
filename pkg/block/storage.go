// Package block implements fixed-size block storage on top of a single
// file. Blocks are addressed by id (id * BlockSize is the file offset), carry
// five uint32 header fields and a content region. Only the first disk sector
// of a block is cached in memory.
package block

import (
	"os"

	"go-blockdb/pkg/customerrors"
	"go-blockdb/util/logger"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Storage owns the file and hands out Blocks. Live blocks are cached by id,
// so two Find calls for the same id return the same *Block until every
// holder released it.
type Storage struct {
	file   File
	log    logrus.FieldLogger
	closed bool

	blockSize   int
	headerSize  int
	sectorSize  int
	contentSize int

	cache map[uint32]*Block
}

// Open opens (or creates) the block file with the given options.
func Open(fileName string, opts *Options) (*Storage, error) {
	f, err := OpenFile(fileName, os.FileMode(0664))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open block file '%s'", fileName)
	}

	s, err := New(f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened File.
func New(f File, opts *Options) (*Storage, error) {
	if opts == nil {
		opts = &DefaultOptions
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Component("block")
	}

	return &Storage{
		file:        f,
		log:         log,
		blockSize:   opts.BlockSize,
		headerSize:  opts.BlockHeaderSize,
		sectorSize:  opts.DiskSectorSize,
		contentSize: opts.BlockSize - opts.BlockHeaderSize,
		cache:       map[uint32]*Block{},
	}, nil
}

// BlockSize returns the total size of a block.
func (s *Storage) BlockSize() int { return s.blockSize }

// BlockHeaderSize returns the size of the header region.
func (s *Storage) BlockHeaderSize() int { return s.headerSize }

// BlockContentSize returns the number of content bytes per block.
func (s *Storage) BlockContentSize() int { return s.contentSize }

// DiskSectorSize returns the sector size.
func (s *Storage) DiskSectorSize() int { return s.sectorSize }

// Find returns the block with the given id. (nil, nil) is returned when the
// block lies beyond the end of the file. The caller must Release the block.
func (s *Storage) Find(id uint32) (*Block, error) {
	if s.closed {
		return nil, errors.Wrap(customerrors.ErrUseAfterRelease, "block storage is closed")
	}

	if b, ok := s.cache[id]; ok {
		b.refs++
		return b, nil
	}

	size, err := s.file.Size()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get block file size")
	}
	pos := int64(id) * int64(s.blockSize)
	if pos+int64(s.blockSize) > size {
		return nil, nil
	}

	sector := make([]byte, s.sectorSize)
	if _, err := s.file.ReadAt(sector, pos); err != nil {
		return nil, errors.Wrapf(err, "failed to read first sector of block %d", id)
	}

	b := newBlock(s, id, sector)
	s.cache[id] = b
	return b, nil
}

// Create appends a zeroed block to the end of the file. The caller must
// Release the block.
func (s *Storage) Create() (*Block, error) {
	if s.closed {
		return nil, errors.Wrap(customerrors.ErrUseAfterRelease, "block storage is closed")
	}

	size, err := s.file.Size()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get block file size")
	}
	if size%int64(s.blockSize) != 0 {
		return nil, errors.Wrapf(customerrors.ErrDataIntegrity,
			"block file size %d is not a multiple of block size %d", size, s.blockSize)
	}

	id := uint32(size / int64(s.blockSize))
	if _, err := s.file.WriteAt(make([]byte, s.blockSize), size); err != nil {
		return nil, errors.Wrapf(err, "failed to extend block file for block %d", id)
	}
	if err := s.file.Sync(); err != nil {
		return nil, errors.Wrap(err, "failed to sync block file")
	}

	b := newBlock(s, id, make([]byte, s.sectorSize))
	s.cache[id] = b
	s.log.Debugf("created block %d", id)
	return b, nil
}

// Close flushes every block still held and closes the file. Storage can't
// be used afterwards.
func (s *Storage) Close() error {
	if s.closed {
		return nil
	}

	for id, b := range s.cache {
		if err := b.flush(); err != nil {
			return err
		}
		b.refs = 0
		delete(s.cache, id)
	}

	s.closed = true
	return errors.Wrap(s.file.Close(), "failed to close block file")
}

// release is called by the last holder of a block.
func (s *Storage) release(b *Block) error {
	if s.cache[b.id] == b {
		delete(s.cache, b.id)
	}
	if s.closed {
		return nil
	}
	return b.flush()
}

// cached returns the number of live blocks. Used in tests.
func (s *Storage) cached() int { return len(s.cache) }

// firstSectorContent returns how many content bytes share the first sector
// with the header.
func (s *Storage) firstSectorContent() int {
	return s.sectorSize - s.headerSize
}
