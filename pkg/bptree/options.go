package bptree

import (
	"go-blockdb/pkg/block"
	"go-blockdb/pkg/codec"
	"go-blockdb/pkg/customerrors"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultSettings to be used when Settings fields are left zero.
var DefaultSettings = Settings{
	MinEntriesPerNode: 36,
	MaxCacheSize:      1000,
}

// Settings is the part of the tree options that doesn't depend on the key
// and value types, so it can be loaded from a config file.
type Settings struct {
	// MinEntriesPerNode is the lower bound of entries in every non-root
	// node. Nodes split when they grow past 2*MinEntriesPerNode.
	MinEntriesPerNode int `json:"min_entries_per_node"`

	// MaxCacheSize is the number of node cache entries above which dead
	// entries are pruned.
	MaxCacheSize int `json:"max_cache_size"`
}

// Options represents the configuration options for the tree.
type Options[K, V any] struct {
	Settings

	KeySerializer   codec.Serializer[K]
	ValueSerializer codec.Serializer[V]
	Compare         codec.Comparer[K]

	// AllowDuplicateKeys makes the tree a multi-map. Equal keys are kept in
	// insertion order.
	AllowDuplicateKeys bool

	// Storage is used by Open to create the block storage.
	Storage *block.Options

	// Logger receives debug output. logger.L is used when nil.
	Logger logrus.FieldLogger
}

func (o *Options[K, V]) validate() error {
	if o.KeySerializer == nil || o.ValueSerializer == nil || o.Compare == nil {
		return errors.Wrap(customerrors.ErrConfiguration, "key serializer, value serializer and comparer are required")
	}
	if o.MinEntriesPerNode == 0 {
		o.MinEntriesPerNode = DefaultSettings.MinEntriesPerNode
	}
	if o.MaxCacheSize == 0 {
		o.MaxCacheSize = DefaultSettings.MaxCacheSize
	}
	if o.MinEntriesPerNode < 1 {
		return errors.Wrapf(customerrors.ErrConfiguration, "min entries per node must be positive, got %d", o.MinEntriesPerNode)
	}
	if o.MaxCacheSize < 0 {
		return errors.Wrapf(customerrors.ErrConfiguration, "max cache size can't be negative, got %d", o.MaxCacheSize)
	}
	return nil
}

// ScanOptions control Scan.
type ScanOptions[K any] struct {
	// Key to start at. Scan starts at the first (or last when Reverse is
	// set) entry when nil.
	Key *K

	// Reverse scans in descending order starting at the last entry with a
	// key less than or equal to Key.
	Reverse bool
}
