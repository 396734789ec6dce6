package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tok := NewByteTokenizer()
	prompt := "hi!"
	ids := tok.Encode(prompt)
	assert.Equal(t, []uint32{'h', 'i', '!'}, ids)

	var out []byte
	for _, id := range ids {
		s, ok := tok.Decode(id)
		assert.True(t, ok)
		out = append(out, s...)
	}
	assert.Equal(t, prompt, string(out))
}

func TestDecodeRejectsOutOfRange(t *testing.T) {
	tok := NewByteTokenizer()
	_, ok := tok.Decode(0x100)
	assert.False(t, ok)

	_, ok = tok.Decode(0xFFFF_FFFF)
	assert.False(t, ok)
}

func TestEncodeEmptyPrompt(t *testing.T) {
	tok := NewByteTokenizer()
	assert.Empty(t, tok.Encode(""))
}
