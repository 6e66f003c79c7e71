package bptree

import (
	"go-blockdb/pkg/customerrors"

	"github.com/pkg/errors"
)

// Cursor walks the tree entries in key order, crossing node boundaries by
// climbing to parents and descending to children through the manager.
// A cursor is invalidated by any change of the tree.
//
//	c := tree.FindGreaterOrEqual(key)
//	for c.Next() {
//		fmt.Println(c.Key(), c.Value())
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor[K, V any] struct {
	reverse bool

	// n and idx are the position of the next entry. For a leaf, idx is the
	// next entry to return; for an internal node, idx is the child to
	// descend into first.
	n   *node[K, V]
	idx int

	// position of the entry returned last
	cur    entry[K, V]
	curN   *node[K, V]
	curIdx int

	done bool
	err  error
}

func newCursor[K, V any](n *node[K, V], idx int, reverse bool) *Cursor[K, V] {
	return &Cursor[K, V]{n: n, idx: idx, reverse: reverse, done: n == nil}
}

func errCursor[K, V any](err error) *Cursor[K, V] {
	return &Cursor[K, V]{err: err, done: true}
}

// Next advances the cursor and reports whether there is an entry.
func (c *Cursor[K, V]) Next() bool {
	if c.done {
		return false
	}

	var ok bool
	if c.reverse {
		ok, c.err = c.prev()
	} else {
		ok, c.err = c.next()
	}
	if !ok || c.err != nil {
		c.done = true
		return false
	}
	return true
}

// Key returns the key of the current entry.
func (c *Cursor[K, V]) Key() K { return c.cur.key }

// Value returns the value of the current entry.
func (c *Cursor[K, V]) Value() V { return c.cur.val }

// Err returns the error that stopped the cursor, if any.
func (c *Cursor[K, V]) Err() error { return c.err }

func (c *Cursor[K, V]) emit(n *node[K, V], idx int) {
	c.cur = n.entries[idx]
	c.curN = n
	c.curIdx = idx
}

func (c *Cursor[K, V]) next() (bool, error) {
	var err error
	for !c.n.isLeaf() {
		child := c.n.children[c.idx]
		if c.n, err = c.n.mgr.find(child); err != nil {
			return false, err
		}
		c.idx = 0
	}

	if c.idx < len(c.n.entries) {
		c.emit(c.n, c.idx)
		c.idx++
		return true, nil
	}

	for !c.n.isRoot() {
		parent, err := c.n.parent()
		if err != nil {
			return false, err
		}
		pos, err := c.n.indexInParent(parent)
		if err != nil {
			return false, err
		}

		c.n = parent
		if pos < len(parent.entries) {
			c.emit(parent, pos)
			c.idx = pos + 1
			return true, nil
		}
	}
	return false, nil
}

func (c *Cursor[K, V]) prev() (bool, error) {
	var err error
	for !c.n.isLeaf() {
		child := c.n.children[c.idx]
		if c.n, err = c.n.mgr.find(child); err != nil {
			return false, err
		}
		if c.n.isLeaf() {
			c.idx = len(c.n.entries) - 1
		} else {
			c.idx = len(c.n.children) - 1
		}
	}

	if c.idx >= 0 {
		c.emit(c.n, c.idx)
		c.idx--
		return true, nil
	}

	for !c.n.isRoot() {
		parent, err := c.n.parent()
		if err != nil {
			return false, err
		}
		pos, err := c.n.indexInParent(parent)
		if err != nil {
			return false, err
		}

		c.n = parent
		if pos > 0 {
			c.emit(parent, pos-1)
			c.idx = pos - 1
			return true, nil
		}
	}
	return false, nil
}

// remove deletes the entry returned last. The cursor is done afterwards.
func (c *Cursor[K, V]) remove() error {
	if c.curN == nil {
		return errors.Wrap(customerrors.ErrInvalidOperation, "cursor has no current entry")
	}
	c.done = true
	return c.curN.remove(c.curIdx)
}
