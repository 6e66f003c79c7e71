package block

import (
	"go-blockdb/pkg/customerrors"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultOptions to be used by Open() and New() when nil options are given.
var DefaultOptions = Options{
	BlockSize:       4096,
	BlockHeaderSize: 24,
	DiskSectorSize:  512,
}

// Options represents the configuration options for the block storage.
type Options struct {
	// BlockSize is the total size of a block (header + content). Must be a
	// multiple of DiskSectorSize.
	BlockSize int `json:"block_size"`

	// BlockHeaderSize is the number of bytes reserved at the start of every
	// block for header fields. The header must fit in the first sector.
	BlockHeaderSize int `json:"block_header_size"`

	// DiskSectorSize is the I/O granularity. The first sector of a block is
	// cached in memory while the block is held.
	DiskSectorSize int `json:"disk_sector_size"`

	// Logger receives debug output. logger.L is used when nil.
	Logger logrus.FieldLogger `json:"-"`
}

func (o *Options) validate() error {
	if o.BlockSize <= 0 || o.DiskSectorSize <= 0 {
		return errors.Wrapf(customerrors.ErrConfiguration,
			"block size (%d) and sector size (%d) must be positive", o.BlockSize, o.DiskSectorSize)
	}
	if o.BlockSize%o.DiskSectorSize != 0 {
		return errors.Wrapf(customerrors.ErrConfiguration,
			"block size %d is not a multiple of disk sector size %d", o.BlockSize, o.DiskSectorSize)
	}
	if o.BlockSize <= o.BlockHeaderSize {
		return errors.Wrapf(customerrors.ErrConfiguration,
			"block size %d must be greater than header size %d", o.BlockSize, o.BlockHeaderSize)
	}
	if o.BlockHeaderSize < HeaderFieldCount*headerFieldSize {
		return errors.Wrapf(customerrors.ErrConfiguration,
			"header size %d can't hold %d header fields", o.BlockHeaderSize, HeaderFieldCount)
	}
	if o.BlockHeaderSize >= o.DiskSectorSize {
		return errors.Wrapf(customerrors.ErrConfiguration,
			"header size %d must fit in the first sector (%d)", o.BlockHeaderSize, o.DiskSectorSize)
	}
	return nil
}
