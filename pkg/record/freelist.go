package record

import (
	"encoding/binary"

	"go-blockdb/pkg/block"
	"go-blockdb/pkg/customerrors"

	"github.com/pkg/errors"
)

var bin = binary.LittleEndian

const idSize = 4

// allocateBlock returns a block ready to become part of a record: a freed
// one from the free list when there is any, a new one otherwise. All
// headers of the returned block are zero.
func (s *Storage) allocateBlock() (*block.Block, error) {
	id, ok, err := s.tryFindFreeBlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.blocks.Create()
	}

	b, err := s.blocks.Find(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.Wrapf(customerrors.ErrNotFound, "free block %d", id)
	}
	if b.Header(block.IsDeleted) != 1 {
		_ = b.Release()
		return nil, errors.Wrapf(customerrors.ErrDataIntegrity,
			"block %d is on the free list but not deleted", id)
	}

	for f := block.RecordLength; f < block.HeaderFieldCount; f++ {
		b.SetHeader(f, 0)
	}
	s.log.Debugf("reused free block %d", id)
	return b, nil
}

// tryFindFreeBlock pops a block id off the free list. When the last block
// of the free list is empty, the id is popped from the block before it and
// the empty block itself takes that place, so the free list never ends
// with an empty block it holds on to.
func (s *Storage) tryFindFreeBlock() (id uint32, ok bool, err error) {
	chain, err := s.findBlocks(FreeListRecord)
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to load free list")
	}
	defer func() { err = releaseAll(chain, err) }()

	last := chain[len(chain)-1]
	if last.Header(block.ContentLength) > 0 {
		id, err = popUint32(last)
		return id, err == nil, err
	}
	if len(chain) == 1 {
		return 0, false, nil
	}

	preLast := chain[len(chain)-2]
	if id, err = popUint32(preLast); err != nil {
		return 0, false, err
	}
	if err = pushUint32(preLast, last.Id()); err != nil {
		return 0, false, err
	}
	preLast.SetHeader(block.NextBlockId, 0)
	last.SetHeader(block.PreviousBlockId, 0)
	last.SetHeader(block.IsDeleted, 1)

	return id, true, nil
}

// markAsFree pushes id onto the free list, growing the free list record
// with a new block when its last block is full.
func (s *Storage) markAsFree(id uint32) (err error) {
	chain, err := s.findBlocks(FreeListRecord)
	if err != nil {
		return errors.Wrap(err, "failed to load free list")
	}
	defer func() { err = releaseAll(chain, err) }()

	last := chain[len(chain)-1]
	if int(last.Header(block.ContentLength))+idSize > s.blocks.BlockContentSize() {
		b, err := s.blocks.Create()
		if err != nil {
			return errors.Wrap(err, "failed to grow free list")
		}
		chain = append(chain, b)
		last.SetHeader(block.NextBlockId, b.Id())
		b.SetHeader(block.PreviousBlockId, last.Id())
		last = b
	}

	s.log.Debugf("freed block %d", id)
	return pushUint32(last, id)
}

// FreeBlocks returns the ids on the free list, bottom of the stack first.
func (s *Storage) FreeBlocks() (ids []uint32, err error) {
	chain, err := s.findBlocks(FreeListRecord)
	if err != nil {
		return nil, err
	}
	defer func() { err = releaseAll(chain, err) }()

	buf := make([]byte, s.blocks.BlockContentSize())
	for _, b := range chain {
		n := int(b.Header(block.ContentLength))
		if n%idSize != 0 {
			return nil, errors.Wrapf(customerrors.ErrMisaligned, "block %d content length %d", b.Id(), n)
		}
		if err := b.Read(buf, 0, 0, n); err != nil {
			return nil, err
		}
		for i := 0; i < n; i += idSize {
			ids = append(ids, bin.Uint32(buf[i:i+idSize]))
		}
	}
	return ids, nil
}

// Check verifies the free list: every listed block must exist, be marked
// deleted and be listed once.
func (s *Storage) Check() error {
	ids, err := s.FreeBlocks()
	if err != nil {
		return err
	}

	seen := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		if id == FreeListRecord {
			return errors.Wrap(customerrors.ErrDataIntegrity, "free list holds block 0")
		}
		if seen[id] {
			return errors.Wrapf(customerrors.ErrDataIntegrity, "block %d is freed twice", id)
		}
		seen[id] = true

		b, err := s.blocks.Find(id)
		if err != nil {
			return err
		}
		if b == nil {
			return errors.Wrapf(customerrors.ErrNotFound, "free block %d", id)
		}
		deleted := b.Header(block.IsDeleted) == 1
		if err := b.Release(); err != nil {
			return err
		}
		if !deleted {
			return errors.Wrapf(customerrors.ErrDataIntegrity, "free block %d is not marked deleted", id)
		}
	}
	return nil
}

func popUint32(b *block.Block) (uint32, error) {
	n := int(b.Header(block.ContentLength))
	if n%idSize != 0 {
		return 0, errors.Wrapf(customerrors.ErrMisaligned, "block %d content length %d", b.Id(), n)
	}
	if n == 0 {
		return 0, errors.Wrapf(customerrors.ErrDataIntegrity, "pop from empty free list block %d", b.Id())
	}

	buf := make([]byte, idSize)
	if err := b.Read(buf, 0, n-idSize, idSize); err != nil {
		return 0, err
	}
	b.SetHeader(block.ContentLength, uint32(n-idSize))
	return bin.Uint32(buf), nil
}

func pushUint32(b *block.Block, v uint32) error {
	n := int(b.Header(block.ContentLength))
	if n%idSize != 0 {
		return errors.Wrapf(customerrors.ErrMisaligned, "block %d content length %d", b.Id(), n)
	}

	buf := make([]byte, idSize)
	bin.PutUint32(buf, v)
	if err := b.Write(buf, 0, n, idSize); err != nil {
		return errors.Wrapf(err, "free list block %d is full", b.Id())
	}
	b.SetHeader(block.ContentLength, uint32(n+idSize))
	return nil
}
