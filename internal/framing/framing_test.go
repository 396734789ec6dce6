package framing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	c := ConfigIn{
		InputBufferAddr:  0x1122_3344_5566_7788,
		OutputBufferAddr: 0xAABB_CCDD_EEFF_0011,
		KVCacheAddr:      0x0102_0304_0506_0708,
		Stride:           128,
		MaxTokens:        2048,
		BatchSize:        1,
		SequenceLength:   4096,
		NumLayers:        32,
		HiddenSize:       4096,
		NumHeads:         32,
		VocabSize:        32000,
		PromptLength:     17,
		TaskID:           42,
		TaskType:         TaskTypeGenerate,
		Flags:            0,
	}

	words := Pack(c)
	require.Len(t, words, NumConfigWords)

	got := Unpack(words)
	assert.Equal(t, c, got)
}

func TestPackReservedWordsAreZero(t *testing.T) {
	words := Pack(ConfigIn{InputBufferAddr: ^uint64(0), OutputBufferAddr: ^uint64(0), KVCacheAddr: ^uint64(0)})
	for i := reservedStart; i < NumConfigWords; i++ {
		assert.Equalf(t, uint32(0), words[i], "reserved word %d must be zero", i)
	}
}

func TestPackLittleEndian64BitFields(t *testing.T) {
	c := ConfigIn{InputBufferAddr: 0x1122_3344_5566_7788}
	words := Pack(c)
	assert.Equal(t, uint32(0x5566_7788), words[wordInputAddrLo])
	assert.Equal(t, uint32(0x1122_3344), words[wordInputAddrHi])
}

func TestConfigWordsChanged(t *testing.T) {
	old := Pack(ConfigIn{TaskID: 1, PromptLength: 5})
	updated := Pack(ConfigIn{TaskID: 2, PromptLength: 5})

	changed := ConfigWordsChanged(old, updated)
	assert.Equal(t, []int{wordTaskID}, changed)
}

func TestConfigWordsChangedNone(t *testing.T) {
	c := Pack(ConfigIn{TaskID: 7})
	assert.Empty(t, ConfigWordsChanged(c, c))
}

func TestStatusRoundTrip(t *testing.T) {
	s := StatusOut{CurrentToken: 99, TokensGenerated: 3, ErrorCode: 0, Flags: StatusValid | StatusDone}
	words := PackStatus(s)
	require.Len(t, words, NumStatusWords)

	got := UnpackStatus(words)
	assert.Equal(t, s, got)
	assert.True(t, got.Valid())
	assert.True(t, got.Done())
	assert.False(t, got.Errored())
}

func TestStatusFlagHelpers(t *testing.T) {
	s := StatusOut{Flags: StatusError}
	assert.False(t, s.Valid())
	assert.False(t, s.Done())
	assert.True(t, s.Errored())
}
