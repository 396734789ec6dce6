// Package tokenizer stands in for the out-of-scope production tokenizer:
// a trivial byte-to-id map, sufficient to exercise the
// engine's encode/stream contract without any real vocabulary.
package tokenizer

// ByteTokenizer maps each byte of a prompt to its numeric value as a
// token id, and decodes a token id back to its single byte. Token ids
// above 0xFF never decode, since the accelerator's own EOS sentinel
// (0xFFFF_FFFF) and any device-reported error codes must not be
// mistaken for a byte value.
type ByteTokenizer struct{}

// NewByteTokenizer constructs the trivial tokenizer.
func NewByteTokenizer() *ByteTokenizer { return &ByteTokenizer{} }

// Encode converts prompt to one token per byte.
func (ByteTokenizer) Encode(prompt string) []uint32 {
	b := []byte(prompt)
	out := make([]uint32, len(b))
	for i, c := range b {
		out[i] = uint32(c)
	}
	return out
}

// Decode converts a single token id back to its byte, as a one-byte
// string. It returns false for any id outside the single-byte range.
func (ByteTokenizer) Decode(token uint32) (string, bool) {
	if token > 0xFF {
		return "", false
	}
	return string([]byte{byte(token)}), true
}
