package bptree

import (
	"context"

	"go-blockdb/pkg/customerrors"

	"github.com/pkg/errors"
)

// Check walks the whole tree and verifies its structure: entry counts of
// non-root nodes are within [MinEntriesPerNode, 2*MinEntriesPerNode],
// internal nodes have one child more than entries, every child points back
// to its parent, all leaves are at the same depth and keys are in order.
func (tree *Tree[K, V]) Check() error {
	return tree.CheckContext(context.Background())
}

// CheckContext is Check that stops with ctx.Err() once ctx is done.
func (tree *Tree[K, V]) CheckContext(ctx context.Context) error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	root := tree.mgr.root
	if root == nil {
		return errors.Wrap(customerrors.ErrDataIntegrity, "tree has no root")
	}
	if !root.isRoot() {
		return errors.Wrapf(customerrors.ErrDataIntegrity, "root %d has parent %d", root.id, root.parentId)
	}

	c := &checker[K, V]{ctx: ctx, tree: tree, leafDepth: -1}
	return c.check(root, 0)
}

type checker[K, V any] struct {
	ctx       context.Context
	tree      *Tree[K, V]
	leafDepth int

	hasPrev bool
	prev    K
}

func (c *checker[K, V]) check(n *node[K, V], depth int) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}

	minEntries := c.tree.mgr.minEntries
	if !n.isRoot() && (len(n.entries) < minEntries || len(n.entries) > 2*minEntries) {
		return errors.Wrapf(customerrors.ErrDataIntegrity,
			"node %d holds %d entries, allowed [%d, %d]", n.id, len(n.entries), minEntries, 2*minEntries)
	}
	if n.isRoot() && len(n.entries) > 2*minEntries {
		return errors.Wrapf(customerrors.ErrDataIntegrity, "root %d holds %d entries", n.id, len(n.entries))
	}

	if n.isLeaf() {
		if c.leafDepth == -1 {
			c.leafDepth = depth
		} else if c.leafDepth != depth {
			return errors.Wrapf(customerrors.ErrDataIntegrity,
				"leaf %d is at depth %d, other leaves at %d", n.id, depth, c.leafDepth)
		}
		for _, e := range n.entries {
			if err := c.visit(n, e); err != nil {
				return err
			}
		}
		return nil
	}

	if len(n.children) != len(n.entries)+1 {
		return errors.Wrapf(customerrors.ErrDataIntegrity,
			"node %d has %d children for %d entries", n.id, len(n.children), len(n.entries))
	}

	for i, id := range n.children {
		child, err := c.tree.mgr.find(id)
		if err != nil {
			return err
		}
		if child.parentId != n.id {
			return errors.Wrapf(customerrors.ErrDataIntegrity,
				"node %d is a child of %d but points to parent %d", child.id, n.id, child.parentId)
		}
		if err := c.check(child, depth+1); err != nil {
			return err
		}
		if i < len(n.entries) {
			if err := c.visit(n, n.entries[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// visit is called for every entry in key order.
func (c *checker[K, V]) visit(n *node[K, V], e entry[K, V]) error {
	if c.hasPrev {
		cmp := c.tree.mgr.cmp(c.prev, e.key)
		if cmp > 0 || (cmp == 0 && !c.tree.allowDuplicates) {
			return errors.Wrapf(customerrors.ErrDataIntegrity,
				"node %d: key %v follows %v", n.id, e.key, c.prev)
		}
	}
	c.prev = e.key
	c.hasPrev = true
	return nil
}
