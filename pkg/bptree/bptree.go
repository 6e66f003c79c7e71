// Package bptree implements an on-disk B-tree index over a record storage.
// Every node is stored as one record; the id of the root node is kept in
// record 1. Keys are ordered with a user supplied comparer and may repeat
// when the tree allows duplicate keys.
package bptree

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go-blockdb/pkg/codec"
	"go-blockdb/pkg/customerrors"
	"go-blockdb/pkg/record"
	"go-blockdb/util/logger"

	"github.com/pkg/errors"
)

// bin is the byte order used for all marshals/unmarshals.
var bin = binary.LittleEndian

// Tree is an ordered index. Changes are collected in memory and written to
// the storage by SaveChanges, which Insert and the Delete calls run before
// returning.
type Tree[K, V any] struct {
	mu       *sync.Mutex
	records  *record.Storage
	ownsFile bool
	mgr      *nodeManager[K, V]

	allowDuplicates bool
}

// Open opens the named block file as a tree index. The file is created if
// it doesn't exist. Close closes the file.
func Open[K, V any](fileName string, opts *Options[K, V]) (*Tree[K, V], error) {
	if opts == nil {
		return nil, errors.Wrap(customerrors.ErrConfiguration, "tree options are required")
	}

	records, err := record.Open(fileName, opts.Storage)
	if err != nil {
		return nil, err
	}

	tree, err := New(records, opts)
	if err != nil {
		_ = records.Close()
		return nil, err
	}
	tree.ownsFile = true
	return tree, nil
}

// New returns a tree stored in records. The storage must be empty or hold
// a tree created with the same serializers.
func New[K, V any](records *record.Storage, opts *Options[K, V]) (*Tree[K, V], error) {
	if opts == nil {
		return nil, errors.Wrap(customerrors.ErrConfiguration, "tree options are required")
	}
	o := *opts
	if err := o.validate(); err != nil {
		return nil, err
	}

	log := o.Logger
	if log == nil {
		log = logger.Component("bptree")
	}

	mgr, err := newNodeManager(records, &o, log)
	if err != nil {
		return nil, err
	}

	return &Tree[K, V]{
		mu:              &sync.Mutex{},
		records:         records,
		mgr:             mgr,
		allowDuplicates: o.AllowDuplicateKeys,
	}, nil
}

// Insert puts the key-value pair into the tree. ErrDuplicateKey is
// returned when the key exists and duplicates are not allowed.
func (tree *Tree[K, V]) Insert(key K, val V) error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	if err := tree.insert(entry[K, V]{key: key, val: val}); err != nil {
		return err
	}
	return tree.mgr.saveChanges()
}

// Get fetches the entry with the given key. With duplicate keys the oldest
// entry is returned.
func (tree *Tree[K, V]) Get(key K) (val V, found bool, err error) {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	c := tree.findGreaterOrEqual(key)
	if c.Next() && tree.mgr.cmp(c.Key(), key) == 0 {
		return c.Value(), true, nil
	}
	return val, false, c.Err()
}

// FindGreaterOrEqual returns a cursor over the entries with keys greater
// than or equal to key, in ascending order.
func (tree *Tree[K, V]) FindGreaterOrEqual(key K) *Cursor[K, V] {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	return tree.findGreaterOrEqual(key)
}

// FindLessOrEqual returns a cursor over the entries with keys less than or
// equal to key, in descending order.
func (tree *Tree[K, V]) FindLessOrEqual(key K) *Cursor[K, V] {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	return tree.findLessOrEqual(key)
}

// Delete removes the entry with the given key from a unique key tree and
// reports whether it existed.
func (tree *Tree[K, V]) Delete(key K) (bool, error) {
	if tree.allowDuplicates {
		return false, errors.Wrap(customerrors.ErrInvalidOperation, "use DeleteValue on a tree with duplicate keys")
	}

	tree.mu.Lock()
	defer tree.mu.Unlock()

	c := tree.findGreaterOrEqual(key)
	if !c.Next() {
		return false, c.Err()
	}
	if tree.mgr.cmp(c.Key(), key) != 0 {
		return false, nil
	}

	if err := c.remove(); err != nil {
		return false, err
	}
	return true, tree.mgr.saveChanges()
}

// DeleteValue removes every entry of a duplicate key tree with the given
// key and a value equal to val according to valueCmp. It reports whether
// anything was removed.
func (tree *Tree[K, V]) DeleteValue(key K, val V, valueCmp codec.Comparer[V]) (bool, error) {
	if !tree.allowDuplicates {
		return false, errors.Wrap(customerrors.ErrInvalidOperation, "use Delete on a tree with unique keys")
	}

	tree.mu.Lock()
	defer tree.mu.Unlock()

	deleted := false
	for {
		removed, err := tree.deleteFirstValue(key, val, valueCmp)
		if err != nil {
			return deleted, err
		}
		if !removed {
			break
		}
		deleted = true
	}

	return deleted, tree.mgr.saveChanges()
}

// deleteFirstValue removes the first matching entry. Removal reshapes the
// tree, so every removal starts a new cursor.
func (tree *Tree[K, V]) deleteFirstValue(key K, val V, valueCmp codec.Comparer[V]) (bool, error) {
	c := tree.findGreaterOrEqual(key)
	for c.Next() {
		if tree.mgr.cmp(c.Key(), key) != 0 {
			return false, nil
		}
		if valueCmp(c.Value(), val) == 0 {
			return true, c.remove()
		}
	}
	return false, c.Err()
}

// Scan performs a scan starting at the given key. Each entry is passed to
// scanFn. Scan continues until the last entry is reached or scanFn returns
// true. If opts.Reverse is set, the scan runs in descending key order.
func (tree *Tree[K, V]) Scan(opts ScanOptions[K], scanFn func(key K, val V) (bool, error)) error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	var c *Cursor[K, V]
	switch {
	case opts.Key != nil && opts.Reverse:
		c = tree.findLessOrEqual(*opts.Key)
	case opts.Key != nil:
		c = tree.findGreaterOrEqual(*opts.Key)
	case opts.Reverse:
		c = newCursor(tree.mgr.root, lastPosition(tree.mgr.root), true)
	default:
		c = newCursor(tree.mgr.root, 0, false)
	}

	for c.Next() {
		if stop, err := scanFn(c.Key(), c.Value()); err != nil {
			return err
		} else if stop {
			return nil
		}
	}
	return c.Err()
}

// Count returns the number of entries in the tree.
func (tree *Tree[K, V]) Count() (int, error) {
	counter := 0
	err := tree.Scan(ScanOptions[K]{}, func(K, V) (bool, error) {
		counter++
		return false, nil
	})
	return counter, err
}

// SaveChanges writes all modified nodes to the storage.
func (tree *Tree[K, V]) SaveChanges() error {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	return tree.mgr.saveChanges()
}

// Close flushes any writes and closes the file when the tree was opened
// with Open.
func (tree *Tree[K, V]) Close() error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	if tree.records == nil {
		return nil
	}

	err := tree.mgr.saveChanges()
	if tree.ownsFile {
		if cerr := tree.records.Close(); err == nil {
			err = cerr
		}
	}
	tree.records = nil
	return err
}

func (tree *Tree[K, V]) String() string {
	return fmt.Sprintf("Tree{root=%d, min_entries=%d, duplicates=%t}",
		tree.mgr.root.id, tree.mgr.minEntries, tree.allowDuplicates)
}

func (tree *Tree[K, V]) insert(e entry[K, V]) error {
	n := tree.mgr.root
	for {
		if !tree.allowDuplicates {
			if _, found := n.searchFirst(e.key); found {
				return errors.Wrapf(customerrors.ErrDuplicateKey, "key %v", e.key)
			}
		}

		// equal keys go after the existing ones
		idx, _ := n.searchAfter(e.key)
		if n.isLeaf() {
			n.insertEntry(idx, e)
			if n.isOverflowed() {
				return n.split()
			}
			return nil
		}

		var err error
		if n, err = n.child(idx); err != nil {
			return err
		}
	}
}

// findGreaterOrEqual positions a cursor before the first entry not less
// than key. The search always ends in a leaf; when the leaf has no such
// entry the cursor climbs to the ancestor holding it.
func (tree *Tree[K, V]) findGreaterOrEqual(key K) *Cursor[K, V] {
	n := tree.mgr.root
	for {
		idx, _ := n.searchFirst(key)
		if n.isLeaf() {
			return newCursor(n, idx, false)
		}

		var err error
		if n, err = n.child(idx); err != nil {
			return errCursor[K, V](err)
		}
	}
}

// findLessOrEqual positions a cursor after the last entry not greater than
// key.
func (tree *Tree[K, V]) findLessOrEqual(key K) *Cursor[K, V] {
	n := tree.mgr.root
	for {
		idx, _ := n.searchAfter(key)
		if n.isLeaf() {
			return newCursor(n, idx-1, true)
		}

		var err error
		if n, err = n.child(idx); err != nil {
			return errCursor[K, V](err)
		}
	}
}

// lastPosition is the starting position of a reverse scan of the whole
// subtree of n.
func lastPosition[K, V any](n *node[K, V]) int {
	if n.isLeaf() {
		return len(n.entries) - 1
	}
	return len(n.children) - 1
}
