// Package record builds variable-length records out of chains of blocks.
//
// A record is a chain of blocks linked with the NextBlockId/PreviousBlockId
// headers. The head block id is the record id, RecordLength of the head
// holds the total length, ContentLength of every block holds its share.
//
// Record 0 is reserved: its content is a stack of uint32 ids of freed
// blocks which are reused by later allocations.
package record

import (
	"go-blockdb/pkg/block"
	"go-blockdb/pkg/customerrors"
	"go-blockdb/util/helpers"
	"go-blockdb/util/logger"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// MaxRecordSize is the hard cap for a single record payload.
	MaxRecordSize = 4 * 1024 * 1024

	// FreeListRecord is the reserved record holding freed block ids.
	FreeListRecord uint32 = 0
)

// Generator produces the payload of a record once its id is known.
type Generator func(id uint32) ([]byte, error)

// Storage is a record store over a block storage.
type Storage struct {
	blocks *block.Storage
	log    logrus.FieldLogger
}

// New returns a record storage over blocks. The record storage does not
// own blocks; closing blocks is up to the caller unless Open was used.
func New(blocks *block.Storage) *Storage {
	return &Storage{
		blocks: blocks,
		log:    logger.Component("record"),
	}
}

// Open opens a block file and returns a record storage over it. Close
// closes the underlying block storage.
func Open(fileName string, opts *block.Options) (*Storage, error) {
	blocks, err := block.Open(fileName, opts)
	if err != nil {
		return nil, err
	}

	s := New(blocks)
	if opts != nil && opts.Logger != nil {
		s.log = opts.Logger
	}
	return s, nil
}

// Close closes the underlying block storage.
func (s *Storage) Close() error {
	return s.blocks.Close()
}

// Find returns the payload of the record with the given id. ok is false
// when there is no such record: the block is missing, deleted, or belongs
// to the middle of another record's chain.
func (s *Storage) Find(id uint32) (data []byte, ok bool, err error) {
	if id == FreeListRecord {
		return nil, false, nil
	}

	chain, err := s.findBlocks(id)
	if err != nil {
		return nil, false, err
	}
	if chain == nil {
		return nil, false, nil
	}
	defer func() { err = releaseAll(chain, err) }()

	total := chain[0].Header(block.RecordLength)
	if total > MaxRecordSize {
		return nil, false, errors.Wrapf(customerrors.ErrRecordTooLarge,
			"record %d has length %d", id, total)
	}

	data = make([]byte, total)
	offset := 0
	for _, b := range chain {
		n := int(b.Header(block.ContentLength))
		if offset+n > len(data) {
			return nil, false, errors.Wrapf(customerrors.ErrDataIntegrity,
				"record %d: block %d content overflows record length %d", id, b.Id(), total)
		}
		if err := b.Read(data, offset, 0, n); err != nil {
			return nil, false, errors.Wrapf(err, "failed to read record %d", id)
		}
		offset += n
	}
	if offset != len(data) {
		return nil, false, errors.Wrapf(customerrors.ErrDataIntegrity,
			"record %d: chain holds %d bytes, expected %d", id, offset, total)
	}

	return data, true, nil
}

// Create creates an empty record.
func (s *Storage) Create() (uint32, error) {
	return s.CreateFunc(func(uint32) ([]byte, error) { return nil, nil })
}

// CreateData creates a record holding data.
func (s *Storage) CreateData(data []byte) (uint32, error) {
	return s.CreateFunc(func(uint32) ([]byte, error) { return data, nil })
}

// CreateFunc allocates the head block first and calls gen with its id, so
// the payload may embed the id of the record it is stored in.
func (s *Storage) CreateFunc(gen Generator) (id uint32, err error) {
	first, err := s.allocateBlock()
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate head block")
	}
	id = first.Id()

	data, err := gen(id)
	if err == nil && len(data) > MaxRecordSize {
		err = errors.Wrapf(customerrors.ErrRecordTooLarge, "payload of %d bytes", len(data))
	}
	if err != nil {
		first.SetHeader(block.IsDeleted, 1)
		if ferr := first.Release(); ferr != nil {
			return 0, ferr
		}
		if ferr := s.markAsFree(id); ferr != nil {
			return 0, ferr
		}
		return 0, err
	}

	chain := []*block.Block{first}
	defer func() { err = releaseAll(chain, err) }()

	first.SetHeader(block.RecordLength, uint32(len(data)))

	contentSize := s.blocks.BlockContentSize()
	written := 0
	cur := first
	for {
		n := helpers.Min(contentSize, len(data)-written)
		if err := cur.Write(data, written, 0, n); err != nil {
			return 0, errors.Wrapf(err, "failed to write record %d", id)
		}
		cur.SetHeader(block.ContentLength, uint32(n))
		written += n
		if written == len(data) {
			break
		}

		next, err := s.allocateBlock()
		if err != nil {
			return 0, errors.Wrapf(err, "failed to allocate block for record %d", id)
		}
		chain = append(chain, next)
		cur.SetHeader(block.NextBlockId, next.Id())
		next.SetHeader(block.PreviousBlockId, cur.Id())
		cur = next
	}

	s.log.Debugf("created record %d (%d bytes, %d blocks)", id, len(data), len(chain))
	return id, nil
}

// Update replaces the payload of an existing record. Blocks of the chain
// are reused in order, extra blocks are allocated and surplus ones freed.
// The head block always stays, so the record id doesn't change.
func (s *Storage) Update(id uint32, data []byte) (err error) {
	if id == FreeListRecord {
		return errors.Wrapf(customerrors.ErrReservedRecord, "update of record %d", id)
	}
	if len(data) > MaxRecordSize {
		return errors.Wrapf(customerrors.ErrRecordTooLarge, "payload of %d bytes", len(data))
	}

	chain, err := s.findBlocks(id)
	if err != nil {
		return err
	}
	if chain == nil {
		return errors.Wrapf(customerrors.ErrNotFound, "record %d", id)
	}
	defer func() { err = releaseAll(chain, err) }()

	contentSize := s.blocks.BlockContentSize()
	needed := helpers.Max(1, helpers.CeilDiv(len(data), contentSize))

	written := 0
	for i := 0; i < needed; i++ {
		var b *block.Block
		if i < len(chain) {
			b = chain[i]
		} else {
			b, err = s.allocateBlock()
			if err != nil {
				return errors.Wrapf(err, "failed to allocate block for record %d", id)
			}
			prev := chain[i-1]
			prev.SetHeader(block.NextBlockId, b.Id())
			b.SetHeader(block.PreviousBlockId, prev.Id())
			chain = append(chain, b)
		}

		n := helpers.Min(contentSize, len(data)-written)
		if err := b.Write(data, written, 0, n); err != nil {
			return errors.Wrapf(err, "failed to write record %d", id)
		}
		b.SetHeader(block.ContentLength, uint32(n))
		written += n
	}

	surplus := chain[needed:]
	chain[needed-1].SetHeader(block.NextBlockId, 0)
	chain[0].SetHeader(block.RecordLength, uint32(len(data)))

	for _, b := range surplus {
		if err := s.markAsFree(b.Id()); err != nil {
			return err
		}
		b.SetHeader(block.IsDeleted, 1)
	}
	return nil
}

// Delete frees every block of the record.
func (s *Storage) Delete(id uint32) (err error) {
	if id == FreeListRecord {
		return errors.Wrapf(customerrors.ErrReservedRecord, "delete of record %d", id)
	}

	chain, err := s.findBlocks(id)
	if err != nil {
		return err
	}
	if chain == nil {
		return errors.Wrapf(customerrors.ErrNotFound, "record %d", id)
	}
	defer func() { err = releaseAll(chain, err) }()

	for _, b := range chain {
		if err := s.markAsFree(b.Id()); err != nil {
			return err
		}
		b.SetHeader(block.IsDeleted, 1)
	}

	s.log.Debugf("deleted record %d (%d blocks)", id, len(chain))
	return nil
}

// findBlocks loads the whole chain starting at id. It returns a nil chain
// when id is not the head of a live record. Record 0 is created on demand.
func (s *Storage) findBlocks(id uint32) (chain []*block.Block, err error) {
	defer func() {
		if err != nil {
			_ = releaseAll(chain, nil)
			chain = nil
		}
	}()

	head, err := s.blocks.Find(id)
	if err != nil {
		return nil, err
	}
	if head == nil {
		if id != FreeListRecord {
			return nil, nil
		}
		if head, err = s.blocks.Create(); err != nil {
			return nil, errors.Wrap(err, "failed to create free list record")
		}
		chain = append(chain, head)
		if head.Id() != FreeListRecord {
			return chain, errors.Wrapf(customerrors.ErrDataIntegrity,
				"free list record got block %d", head.Id())
		}
		return chain, nil
	}

	chain = append(chain, head)
	if head.Header(block.IsDeleted) == 1 || head.Header(block.PreviousBlockId) != 0 {
		if id == FreeListRecord {
			return chain, errors.Wrap(customerrors.ErrDataIntegrity,
				"free list record head is deleted or not a record head")
		}
		return nil, releaseAll(chain, nil)
	}

	seen := map[uint32]bool{id: true}
	cur := head
	for next := cur.Header(block.NextBlockId); next != 0; next = cur.Header(block.NextBlockId) {
		if seen[next] {
			return chain, errors.Wrapf(customerrors.ErrDataIntegrity,
				"record %d: chain loops back to block %d", id, next)
		}
		seen[next] = true

		b, err := s.blocks.Find(next)
		if err != nil {
			return chain, err
		}
		if b == nil {
			return chain, errors.Wrapf(customerrors.ErrNotFound,
				"record %d: block %d referenced by block %d", id, next, cur.Id())
		}
		chain = append(chain, b)

		if b.Header(block.IsDeleted) == 1 {
			return chain, errors.Wrapf(customerrors.ErrDataIntegrity,
				"record %d: chain goes through deleted block %d", id, next)
		}
		if b.Header(block.PreviousBlockId) != cur.Id() {
			return chain, errors.Wrapf(customerrors.ErrDataIntegrity,
				"record %d: block %d points back to %d instead of %d",
				id, next, b.Header(block.PreviousBlockId), cur.Id())
		}
		cur = b
	}

	return chain, nil
}

// releaseAll releases every block of chain and returns err, or the first
// release error when err is nil.
func releaseAll(chain []*block.Block, err error) error {
	for _, b := range chain {
		if rerr := b.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
