package utils_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"elflink/pkg/utils"
)

func TestReadWriteRoundTrip(t *testing.T) {
	type pair struct{ A, B uint32 }

	buf := make([]byte, 8)
	utils.Write(buf, pair{A: 0x11223344, B: 0x55667788})
	got := utils.Read[pair](buf, binary.LittleEndian)
	assert.Equal(t, pair{A: 0x11223344, B: 0x55667788}, got)

	beBuf := []byte{0x00, 0x00, 0x00, 0x2a}
	assert.Equal(t, uint32(0x2a), utils.Read[uint32](beBuf, binary.BigEndian))
}

func TestReadSlice(t *testing.T) {
	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}
	got := utils.ReadSlice[uint32](data, 4, binary.LittleEndian)
	assert.Equal(t, []uint32{1, 2, 3}, got)

	assert.Empty(t, utils.ReadSlice[uint32](nil, 4, binary.LittleEndian))
}

func TestSet(t *testing.T) {
	s := utils.NewSet[string]()
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Insert("a"))
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Insert("a"))
	assert.True(t, s.Insert("b"))
}

func TestRemovePrefix(t *testing.T) {
	rest, ok := utils.RemovePrefix("libfoo.so", "lib")
	assert.True(t, ok)
	assert.Equal(t, "foo.so", rest)

	_, ok = utils.RemovePrefix("foo.so", "lib")
	assert.False(t, ok)
}
