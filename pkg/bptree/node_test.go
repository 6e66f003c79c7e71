package bptree

import (
	"reflect"
	"testing"

	"go-blockdb/pkg/codec"
	"go-blockdb/pkg/customerrors"

	"github.com/stretchr/testify/require"
)

func testNode(keys ...int32) *node[int32, int32] {
	n := &node[int32, int32]{
		mgr: &nodeManager[int32, int32]{cmp: codec.Compare[int32]},
	}
	for _, k := range keys {
		n.entries = append(n.entries, entry[int32, int32]{key: k, val: k * 10})
	}
	return n
}

func Test_node_Search(t *testing.T) {
	n := testNode(1, 3, 5, 7, 9, 11, 13)

	idx, found := n.searchFirst(7)
	assert(t, found, "expected key to exist")
	assert(t, idx == 3, "expected index to be 3 not %d", idx)

	idx, found = n.searchFirst(1)
	assert(t, found, "expected key to exist")
	assert(t, idx == 0, "expected index to be 0 not %d", idx)

	idx, found = n.searchFirst(13)
	assert(t, found, "expected key to exist")
	assert(t, idx == 6, "expected index to be 6 not %d", idx)

	idx, found = n.searchFirst(20)
	assert(t, !found, "expected key to not exist")
	assert(t, idx == 7, "expected insertion index to be 7 not %d", idx)

	idx, found = n.searchFirst(4)
	assert(t, !found, "expected key to not exist")
	assert(t, idx == 2, "expected insertion index to be 2 not %d", idx)
}

func Test_node_SearchDuplicates(t *testing.T) {
	n := testNode(1, 2, 2, 2, 3)

	idx, found := n.searchFirst(2)
	assert(t, found, "expected key to exist")
	assert(t, idx == 1, "expected first occurrence at 1 not %d", idx)

	idx, found = n.searchAfter(2)
	assert(t, found, "expected key to exist")
	assert(t, idx == 4, "expected index after last occurrence to be 4 not %d", idx)

	idx, found = n.searchAfter(0)
	assert(t, !found, "expected key to not exist")
	assert(t, idx == 0, "expected index to be 0 not %d", idx)
}

func Test_node_Fixed_Binary(t *testing.T) {
	s, err := newNodeSerializer[int32, int32](codec.Int32{}, codec.Int32{})
	require.NoError(t, err)

	original := &node[int32, int32]{
		id:       10,
		parentId: 4,
		entries: []entry[int32, int32]{
			{key: 5, val: 50},
			{key: 8, val: -80},
		},
		children: []uint32{3, 18, 7},
	}

	d, err := s.marshal(original)
	require.NoError(t, err)
	require.Len(t, d, nodeHeaderSize+2*8+3*4)

	got, err := s.unmarshal(10, d)
	require.NoError(t, err)
	if !reflect.DeepEqual(original, got) {
		t.Errorf("want=%#v\ngot=%#v", original, got)
	}

	// the id comes from the record, not from the payload
	got, err = s.unmarshal(99, d)
	require.NoError(t, err)
	require.EqualValues(t, 99, got.id)
}

func Test_node_VariableKey_Binary(t *testing.T) {
	s, err := newNodeSerializer[codec.StringInt, int32](codec.StringIntSerializer{}, codec.Int32{})
	require.NoError(t, err)

	original := &node[codec.StringInt, int32]{
		id: 3,
		entries: []entry[codec.StringInt, int32]{
			{key: codec.StringInt{S: "anna", I: 20}, val: 1},
			{key: codec.StringInt{S: "bartholomew", I: 41}, val: 2},
		},
	}

	d, err := s.marshal(original)
	require.NoError(t, err)

	got, err := s.unmarshal(3, d)
	require.NoError(t, err)
	if !reflect.DeepEqual(original, got) {
		t.Errorf("want=%#v\ngot=%#v", original, got)
	}

	_, err = s.unmarshal(3, d[:len(d)-2])
	require.ErrorIs(t, err, customerrors.ErrDataIntegrity)
}

func Test_node_CorruptedCounts(t *testing.T) {
	fixed, err := newNodeSerializer[int32, int32](codec.Int32{}, codec.Int32{})
	require.NoError(t, err)
	variable, err := newNodeSerializer[codec.StringInt, int32](codec.StringIntSerializer{}, codec.Int32{})
	require.NoError(t, err)

	data := make([]byte, nodeHeaderSize)
	bin.PutUint32(data[4:8], 0x7fffffff)

	_, err = fixed.unmarshal(5, data)
	require.ErrorIs(t, err, customerrors.ErrDataIntegrity)
	_, err = variable.unmarshal(5, data)
	require.ErrorIs(t, err, customerrors.ErrDataIntegrity)

	// one entry, two children, but no room for the child ids
	data = make([]byte, nodeHeaderSize+8)
	bin.PutUint32(data[4:8], 1)
	bin.PutUint32(data[8:12], 2)
	_, err = fixed.unmarshal(5, data)
	require.ErrorIs(t, err, customerrors.ErrDataIntegrity)
}

func Test_node_VariableValue_Unsupported(t *testing.T) {
	_, err := newNodeSerializer[int32, string](codec.Int32{}, codec.String{})
	require.ErrorIs(t, err, customerrors.ErrUnsupported)
}

func assert(t *testing.T, cond bool, msg string, args ...interface{}) {
	if cond {
		return
	}
	t.Errorf(msg, args...)
}
