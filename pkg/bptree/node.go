package bptree

import (
	"fmt"

	"go-blockdb/pkg/customerrors"

	"github.com/pkg/errors"
)

type entry[K, V any] struct {
	key K
	val V
}

// node represents an internal or leaf node of the tree. Entries live in
// internal nodes too; an internal node with n entries has n+1 children.
// Parents and children are referenced by id and resolved through the
// manager.
type node[K, V any] struct {
	mgr *nodeManager[K, V]

	id       uint32
	parentId uint32
	entries  []entry[K, V]
	children []uint32
}

func (n *node[K, V]) Dirty() {
	n.mgr.markDirty(n)
}

// isLeaf returns true if this node has no children.
func (n *node[K, V]) isLeaf() bool {
	return len(n.children) == 0
}

func (n *node[K, V]) isRoot() bool {
	return n.parentId == 0
}

func (n *node[K, V]) isOverflowed() bool {
	return len(n.entries) > 2*n.mgr.minEntries
}

func (n *node[K, V]) isUnderflowed() bool {
	return len(n.entries) < n.mgr.minEntries
}

// searchFirst returns the index of the first entry with key not less than
// the given key, and whether that entry has exactly this key.
func (n *node[K, V]) searchFirst(key K) (idx int, found bool) {
	left, right := 0, len(n.entries)
	for left < right {
		mid := (left + right) / 2
		if n.mgr.cmp(n.entries[mid].key, key) < 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left, left < len(n.entries) && n.mgr.cmp(n.entries[left].key, key) == 0
}

// searchAfter returns the index of the first entry with key greater than
// the given key, and whether the entry before it has exactly this key.
func (n *node[K, V]) searchAfter(key K) (idx int, found bool) {
	left, right := 0, len(n.entries)
	for left < right {
		mid := (left + right) / 2
		if n.mgr.cmp(n.entries[mid].key, key) <= 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left, left > 0 && n.mgr.cmp(n.entries[left-1].key, key) == 0
}

// indexInParent returns the position of n among the children of parent.
func (n *node[K, V]) indexInParent(parent *node[K, V]) (int, error) {
	for i, c := range parent.children {
		if c == n.id {
			return i, nil
		}
	}
	return 0, errors.Wrapf(customerrors.ErrDataIntegrity,
		"node %d is not a child of its parent %d", n.id, parent.id)
}

func (n *node[K, V]) parent() (*node[K, V], error) {
	return n.mgr.find(n.parentId)
}

func (n *node[K, V]) child(idx int) (*node[K, V], error) {
	return n.mgr.find(n.children[idx])
}

// insertEntry inserts the entry at the given index into the node.
func (n *node[K, V]) insertEntry(idx int, e entry[K, V]) {
	n.Dirty()
	n.entries = append(n.entries, entry[K, V]{})
	copy(n.entries[idx+1:], n.entries[idx:])
	n.entries[idx] = e
}

// insertChild adds the given child at the given index.
func (n *node[K, V]) insertChild(idx int, id uint32) {
	n.Dirty()
	n.children = append(n.children, 0)
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = id
}

func (n *node[K, V]) setEntry(idx int, e entry[K, V]) {
	n.Dirty()
	n.entries[idx] = e
}

func (n *node[K, V]) setParent(id uint32) {
	if n.parentId != id {
		n.Dirty()
		n.parentId = id
	}
}

// removeEntries removes entries [from, to) and returns them.
func (n *node[K, V]) removeEntries(from, to int) []entry[K, V] {
	n.Dirty()
	e := append(make([]entry[K, V], 0, to-from), n.entries[from:to]...)
	n.entries = append(n.entries[:from], n.entries[to:]...)
	return e
}

// removeChildren removes children [from, to) and returns them.
func (n *node[K, V]) removeChildren(from, to int) []uint32 {
	n.Dirty()
	c := append(make([]uint32, 0, to-from), n.children[from:to]...)
	n.children = append(n.children[:from], n.children[to:]...)
	return c
}

// adopt makes n the parent of every node in ids.
func (n *node[K, V]) adopt(ids []uint32) error {
	for _, id := range ids {
		c, err := n.mgr.find(id)
		if err != nil {
			return err
		}
		c.setParent(n.id)
	}
	return nil
}

// split moves the upper half of an overflowed node into a new right
// sibling and pushes the middle entry up into the parent. A new root is
// created when the node was the root.
func (n *node[K, V]) split() error {
	h := n.mgr.minEntries
	separator := n.entries[h]

	var movedChildren []uint32
	if !n.isLeaf() {
		movedChildren = n.removeChildren(h+1, len(n.children))
	}
	movedEntries := n.removeEntries(h+1, len(n.entries))
	n.removeEntries(h, h+1)

	right, err := n.mgr.create(movedEntries, movedChildren)
	if err != nil {
		return errors.Wrapf(err, "failed to create right sibling of node %d", n.id)
	}
	if err := right.adopt(movedChildren); err != nil {
		return err
	}
	n.mgr.log.Debugf("split node %d, new sibling %d", n.id, right.id)

	if n.isRoot() {
		root, err := n.mgr.createNewRoot(separator, n.id, right.id)
		if err != nil {
			return err
		}
		n.setParent(root.id)
		right.setParent(root.id)
		return nil
	}

	parent, err := n.parent()
	if err != nil {
		return err
	}
	pos, err := n.indexInParent(parent)
	if err != nil {
		return err
	}

	parent.insertEntry(pos, separator)
	parent.insertChild(pos+1, right.id)
	right.setParent(parent.id)

	if parent.isOverflowed() {
		return parent.split()
	}
	return nil
}

// remove deletes the entry at idx. An entry of an internal node is
// replaced with the largest entry of its left subtree, which is then
// removed from its leaf.
func (n *node[K, V]) remove(idx int) error {
	if n.isLeaf() {
		n.removeEntries(idx, idx+1)
		if !n.isRoot() && n.isUnderflowed() {
			return n.rebalance()
		}
		return nil
	}

	leaf, err := n.child(idx)
	if err != nil {
		return err
	}
	for !leaf.isLeaf() {
		if leaf, err = leaf.child(len(leaf.children) - 1); err != nil {
			return err
		}
	}

	last := len(leaf.entries) - 1
	n.setEntry(idx, leaf.entries[last])
	return leaf.remove(last)
}

// rebalance restores the minimum entry count of an underflowed non-root
// node, rotating an entry from a sibling with a surplus or merging with a
// sibling otherwise.
func (n *node[K, V]) rebalance() error {
	parent, err := n.parent()
	if err != nil {
		return err
	}
	pos, err := n.indexInParent(parent)
	if err != nil {
		return err
	}

	var left, right *node[K, V]
	if pos < len(parent.children)-1 {
		if right, err = parent.child(pos + 1); err != nil {
			return err
		}
		if len(right.entries) > n.mgr.minEntries {
			return n.rotateLeft(parent, pos, right)
		}
	}
	if pos > 0 {
		if left, err = parent.child(pos - 1); err != nil {
			return err
		}
		if len(left.entries) > n.mgr.minEntries {
			return n.rotateRight(parent, pos, left)
		}
	}

	if right != nil {
		return n.merge(parent, pos, right)
	}
	if left != nil {
		return left.merge(parent, pos-1, n)
	}
	return errors.Wrapf(customerrors.ErrDataIntegrity, "node %d has no siblings", n.id)
}

// rotateLeft moves the separator down into n and the first entry of the
// right sibling up into the parent.
func (n *node[K, V]) rotateLeft(parent *node[K, V], pos int, right *node[K, V]) error {
	n.insertEntry(len(n.entries), parent.entries[pos])
	parent.setEntry(pos, right.removeEntries(0, 1)[0])

	if !right.isLeaf() {
		moved := right.removeChildren(0, 1)
		n.insertChild(len(n.children), moved[0])
		if err := n.adopt(moved); err != nil {
			return err
		}
	}

	n.mgr.log.Debugf("rotated entry from node %d into node %d", right.id, n.id)
	return nil
}

// rotateRight moves the separator down into n and the last entry of the
// left sibling up into the parent.
func (n *node[K, V]) rotateRight(parent *node[K, V], pos int, left *node[K, V]) error {
	n.insertEntry(0, parent.entries[pos-1])
	last := len(left.entries) - 1
	parent.setEntry(pos-1, left.removeEntries(last, last+1)[0])

	if !left.isLeaf() {
		moved := left.removeChildren(len(left.children)-1, len(left.children))
		n.insertChild(0, moved[0])
		if err := n.adopt(moved); err != nil {
			return err
		}
	}

	n.mgr.log.Debugf("rotated entry from node %d into node %d", left.id, n.id)
	return nil
}

// merge pulls separator pos of the parent and every entry and child of the
// right sibling into n, then deletes the right sibling. An emptied root is
// replaced by n; an underflowed parent is rebalanced in turn.
func (n *node[K, V]) merge(parent *node[K, V], pos int, right *node[K, V]) error {
	n.insertEntry(len(n.entries), parent.entries[pos])
	n.entries = append(n.entries, right.entries...)
	n.children = append(n.children, right.children...)
	if err := n.adopt(right.children); err != nil {
		return err
	}

	parent.removeEntries(pos, pos+1)
	parent.removeChildren(pos+1, pos+2)
	if err := n.mgr.delete(right); err != nil {
		return err
	}
	n.mgr.log.Debugf("merged node %d into node %d", right.id, n.id)

	if parent.isRoot() {
		if len(parent.entries) == 0 {
			if err := n.mgr.makeRoot(n); err != nil {
				return err
			}
			return n.mgr.delete(parent)
		}
		return nil
	}
	if parent.isUnderflowed() {
		return parent.rebalance()
	}
	return nil
}

func (n *node[K, V]) String() string {
	return fmt.Sprintf("node{id=%d, parent=%d, entries=%d, children=%v}",
		n.id, n.parentId, len(n.entries), n.children)
}
