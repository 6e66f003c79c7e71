package bptree

import (
	"go-blockdb/pkg/codec"
	"go-blockdb/pkg/customerrors"
	"go-blockdb/pkg/record"

	"github.com/pkg/errors"
)

// nodeHeaderSize is parentId | entryCount | childCount.
const nodeHeaderSize = 12

// nodeSerializer converts nodes to records and back. With a fixed size key
// every entry is a fixed size key|value slot; with a variable size key every
// entry is keyLength|key|value. Values must always be fixed size.
type nodeSerializer[K, V any] struct {
	keys   codec.Serializer[K]
	values codec.Serializer[V]
}

func newNodeSerializer[K, V any](keys codec.Serializer[K], values codec.Serializer[V]) (*nodeSerializer[K, V], error) {
	if !values.IsFixedSize() {
		return nil, errors.Wrap(customerrors.ErrUnsupported, "variable size values are not supported by the node layout")
	}
	return &nodeSerializer[K, V]{keys: keys, values: values}, nil
}

func (s *nodeSerializer[K, V]) marshal(n *node[K, V]) ([]byte, error) {
	size := nodeHeaderSize + 4*len(n.children)
	keys := make([][]byte, len(n.entries))
	vals := make([][]byte, len(n.entries))

	for i, e := range n.entries {
		k, err := s.keys.Marshal(e.key)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal key of node %d", n.id)
		}
		v, err := s.values.Marshal(e.val)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal value of node %d", n.id)
		}
		if s.keys.IsFixedSize() && len(k) != s.keys.Size() {
			return nil, errors.Wrapf(customerrors.ErrDataIntegrity, "key of %d bytes, expected %d", len(k), s.keys.Size())
		}
		if len(v) != s.values.Size() {
			return nil, errors.Wrapf(customerrors.ErrDataIntegrity, "value of %d bytes, expected %d", len(v), s.values.Size())
		}

		keys[i], vals[i] = k, v
		size += len(k) + len(v)
		if !s.keys.IsFixedSize() {
			size += 4
		}
	}

	if size > record.MaxRecordSize {
		return nil, errors.Wrapf(customerrors.ErrRecordTooLarge, "node %d needs %d bytes", n.id, size)
	}

	data := make([]byte, size)
	bin.PutUint32(data[0:4], n.parentId)
	bin.PutUint32(data[4:8], uint32(len(n.entries)))
	bin.PutUint32(data[8:12], uint32(len(n.children)))

	off := nodeHeaderSize
	for i := range keys {
		if !s.keys.IsFixedSize() {
			bin.PutUint32(data[off:off+4], uint32(len(keys[i])))
			off += 4
		}
		off += copy(data[off:], keys[i])
		off += copy(data[off:], vals[i])
	}
	for _, c := range n.children {
		bin.PutUint32(data[off:off+4], c)
		off += 4
	}

	return data, nil
}

// unmarshal reads the node stored in record id. The node id always comes
// from the record, never from the payload.
func (s *nodeSerializer[K, V]) unmarshal(id uint32, data []byte) (*node[K, V], error) {
	if len(data) < nodeHeaderSize {
		return nil, errors.Wrapf(customerrors.ErrDataIntegrity, "node %d: %d bytes is shorter than the header", id, len(data))
	}

	n := &node[K, V]{
		id:       id,
		parentId: bin.Uint32(data[0:4]),
	}
	entryCount := int(bin.Uint32(data[4:8]))
	childCount := int(bin.Uint32(data[8:12]))
	if childCount != 0 && childCount != entryCount+1 {
		return nil, errors.Wrapf(customerrors.ErrDataIntegrity,
			"node %d: %d children for %d entries", id, childCount, entryCount)
	}

	// reject counts the payload can't hold before allocating for them
	minEntrySize := s.keys.Size() + s.values.Size()
	if !s.keys.IsFixedSize() {
		minEntrySize = 4 + s.values.Size()
	}
	if int64(entryCount)*int64(minEntrySize)+4*int64(childCount) > int64(len(data)-nodeHeaderSize) {
		return nil, errors.Wrapf(customerrors.ErrDataIntegrity,
			"node %d: %d entries and %d children don't fit in %d bytes", id, entryCount, childCount, len(data))
	}

	off := nodeHeaderSize
	need := func(n int) error {
		if off+n > len(data) {
			return errors.Wrapf(customerrors.ErrDataIntegrity, "node %d is truncated at %d", id, off)
		}
		return nil
	}

	n.entries = make([]entry[K, V], 0, entryCount)
	for i := 0; i < entryCount; i++ {
		keyLen := s.keys.Size()
		if !s.keys.IsFixedSize() {
			if err := need(4); err != nil {
				return nil, err
			}
			keyLen = int(bin.Uint32(data[off : off+4]))
			off += 4
		}
		if err := need(keyLen + s.values.Size()); err != nil {
			return nil, err
		}

		key, err := s.keys.Unmarshal(data[off : off+keyLen])
		if err != nil {
			return nil, errors.Wrapf(err, "node %d: bad key %d", id, i)
		}
		off += keyLen

		val, err := s.values.Unmarshal(data[off : off+s.values.Size()])
		if err != nil {
			return nil, errors.Wrapf(err, "node %d: bad value %d", id, i)
		}
		off += s.values.Size()

		n.entries = append(n.entries, entry[K, V]{key: key, val: val})
	}

	if err := need(4 * childCount); err != nil {
		return nil, err
	}
	if childCount > 0 {
		n.children = make([]uint32, childCount)
		for i := range n.children {
			n.children[i] = bin.Uint32(data[off : off+4])
			off += 4
		}
	}

	return n, nil
}
