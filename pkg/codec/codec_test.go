package codec

import (
	"strings"
	"testing"

	"go-blockdb/pkg/customerrors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	require.Equal(t, -1, Compare(1, 2))
	require.Equal(t, 1, Compare("b", "a"))
	require.Equal(t, 0, Compare(int64(-5), int64(-5)))
}

func TestFixedSizeSerializers(t *testing.T) {
	d, err := Int32{}.Marshal(-42)
	require.NoError(t, err)
	require.Len(t, d, Int32{}.Size())
	v32, err := Int32{}.Unmarshal(d)
	require.NoError(t, err)
	require.EqualValues(t, -42, v32)

	d, err = Int64{}.Marshal(1 << 40)
	require.NoError(t, err)
	v64, err := Int64{}.Unmarshal(d)
	require.NoError(t, err)
	require.EqualValues(t, 1<<40, v64)

	_, err = Uint32{}.Unmarshal([]byte{1, 2})
	require.ErrorIs(t, err, customerrors.ErrDataIntegrity)

	id := uuid.New()
	d, err = UUID{}.Marshal(id)
	require.NoError(t, err)
	require.Len(t, d, 16)
	got, err := UUID{}.Unmarshal(d)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestCompareUUID(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	require.Negative(t, CompareUUID(a, b))
	require.Positive(t, CompareUUID(b, a))
	require.Zero(t, CompareUUID(a, a))
}

func TestStringIntSerializer(t *testing.T) {
	s := StringIntSerializer{}
	require.False(t, s.IsFixedSize())

	v := StringInt{S: "Łukasz", I: 33}
	d, err := s.Marshal(v)
	require.NoError(t, err)
	require.Len(t, d, 4+len(v.S)+4)

	got, err := s.Unmarshal(d)
	require.NoError(t, err)
	require.Equal(t, v, got)

	_, err = s.Unmarshal(d[:len(d)-1])
	require.ErrorIs(t, err, customerrors.ErrDataIntegrity)

	_, err = s.Marshal(StringInt{S: strings.Repeat("x", MaxStringSize+1)})
	require.ErrorIs(t, err, customerrors.ErrDataIntegrity)

	require.Negative(t, CompareStringInt(StringInt{"a", 5}, StringInt{"b", 1}))
	require.Negative(t, CompareStringInt(StringInt{"a", 1}, StringInt{"a", 5}))
}
