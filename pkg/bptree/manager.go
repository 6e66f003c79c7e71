package bptree

import (
	"go-blockdb/pkg/cache"
	"go-blockdb/pkg/codec"
	"go-blockdb/pkg/customerrors"
	"go-blockdb/pkg/record"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// rootRecord is the record holding the id of the root node.
const rootRecord uint32 = 1

// nodeManager loads, creates and persists nodes. It is the only owner of
// nodes: a node is resolved by id through the manager, and at most one
// in-memory instance of a node exists at a time.
type nodeManager[K, V any] struct {
	records    *record.Storage
	serializer *nodeSerializer[K, V]
	cmp        codec.Comparer[K]
	minEntries int
	log        logrus.FieldLogger

	root  *node[K, V]
	dirty map[uint32]*node[K, V]
	cache *cache.Cache[uint32, node[K, V]]
}

func newNodeManager[K, V any](records *record.Storage, opts *Options[K, V], log logrus.FieldLogger) (*nodeManager[K, V], error) {
	serializer, err := newNodeSerializer(opts.KeySerializer, opts.ValueSerializer)
	if err != nil {
		return nil, err
	}

	m := &nodeManager[K, V]{
		records:    records,
		serializer: serializer,
		cmp:        opts.Compare,
		minEntries: opts.MinEntriesPerNode,
		log:        log,
		dirty:      map[uint32]*node[K, V]{},
		cache:      cache.New[uint32, node[K, V]](opts.MaxCacheSize),
	}

	if err := m.open(); err != nil {
		return nil, err
	}
	return m, nil
}

// open loads the root node, creating an empty tree in a fresh storage.
func (m *nodeManager[K, V]) open() error {
	data, ok, err := m.records.Find(rootRecord)
	if err != nil {
		return errors.Wrap(err, "failed to read root pointer")
	}

	if ok {
		if len(data) != 4 {
			return errors.Wrapf(customerrors.ErrDataIntegrity, "root pointer of %d bytes", len(data))
		}
		root, err := m.find(bin.Uint32(data))
		if err != nil {
			return errors.Wrap(err, "failed to load root node")
		}
		m.root = root
		return nil
	}

	id, err := m.records.Create()
	if err != nil {
		return errors.Wrap(err, "failed to create root pointer")
	}
	if id != rootRecord {
		return errors.Wrapf(customerrors.ErrDataIntegrity,
			"root pointer got record %d, storage is not empty", id)
	}

	root, err := m.create(nil, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create root node")
	}
	return m.makeRoot(root)
}

// find returns the node with the given id. Nodes are required to exist, a
// missing one means a broken tree.
func (m *nodeManager[K, V]) find(id uint32) (*node[K, V], error) {
	if n, ok := m.dirty[id]; ok {
		return n, nil
	}
	if n, ok := m.cache.Get(id); ok {
		return n, nil
	}

	data, ok, err := m.records.Find(id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read node %d", id)
	}
	if !ok {
		return nil, errors.Wrapf(customerrors.ErrNotFound, "node %d", id)
	}

	n, err := m.serializer.unmarshal(id, data)
	if err != nil {
		return nil, err
	}
	n.mgr = m
	m.cache.Add(id, n)
	return n, nil
}

// create stores a new node. The node id is the id of the record created
// for it.
func (m *nodeManager[K, V]) create(entries []entry[K, V], children []uint32) (*node[K, V], error) {
	var n *node[K, V]
	_, err := m.records.CreateFunc(func(id uint32) ([]byte, error) {
		n = &node[K, V]{
			mgr:      m,
			id:       id,
			entries:  entries,
			children: children,
		}
		return m.serializer.marshal(n)
	})
	if err != nil {
		return nil, err
	}

	m.cache.Add(n.id, n)
	return n, nil
}

// createNewRoot creates a root with a single entry and two children.
func (m *nodeManager[K, V]) createNewRoot(e entry[K, V], left, right uint32) (*node[K, V], error) {
	n, err := m.create([]entry[K, V]{e}, []uint32{left, right})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create new root")
	}
	return n, m.makeRoot(n)
}

// makeRoot installs n as the root and persists the root pointer.
func (m *nodeManager[K, V]) makeRoot(n *node[K, V]) error {
	n.setParent(0)
	m.root = n

	data := make([]byte, 4)
	bin.PutUint32(data, n.id)
	if err := m.records.Update(rootRecord, data); err != nil {
		return errors.Wrap(err, "failed to update root pointer")
	}

	m.log.Debugf("node %d is the new root", n.id)
	return nil
}

// delete removes the node from storage.
func (m *nodeManager[K, V]) delete(n *node[K, V]) error {
	if m.root == n {
		m.root = nil
	}
	delete(m.dirty, n.id)
	m.cache.Remove(n.id)

	return errors.Wrapf(m.records.Delete(n.id), "failed to delete node %d", n.id)
}

func (m *nodeManager[K, V]) markDirty(n *node[K, V]) {
	m.dirty[n.id] = n
}

// saveChanges writes every dirty node. It is the only point where node
// changes reach the storage.
func (m *nodeManager[K, V]) saveChanges() error {
	count := len(m.dirty)
	if count == 0 {
		return nil
	}

	for id, n := range m.dirty {
		data, err := m.serializer.marshal(n)
		if err != nil {
			return err
		}
		if err := m.records.Update(id, data); err != nil {
			return errors.Wrapf(err, "failed to save node %d", id)
		}
		delete(m.dirty, id)
	}

	m.log.Debugf("saved %d dirty nodes", count)
	return nil
}
