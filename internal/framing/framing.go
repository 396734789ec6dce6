// Package framing packs and unpacks the accelerator's configuration and
// status register blocks. Fields are written explicitly at fixed bit
// positions rather than relying on host struct layout, since the packed
// representation must match the FPGA's expectation byte-for-byte.
package framing

// NumConfigWords is the width of the packed ConfigIn register block.
const NumConfigWords = 38

// NumStatusWords is the width of the packed StatusOut register block.
const NumStatusWords = 4

// Task types carried in ConfigIn.TaskType.
const (
	TaskTypeGenerate uint32 = 0
)

// ConfigIn is the logical view of the 1216-bit configuration word.
// Word layout (little-endian, low word first for 64-bit fields):
//
//	w0-1   input_buffer_addr  (64)
//	w2-3   output_buffer_addr (64)
//	w4-5   kv_cache_addr      (64)
//	w6     stride
//	w7     max_tokens
//	w8     batch_size
//	w9     sequence_length
//	w10    num_layers
//	w11    hidden_size
//	w12    num_heads
//	w13    vocab_size
//	w14    prompt_length
//	w15    task_id
//	w16    task_type
//	w17    flags
//	w18-37 reserved
type ConfigIn struct {
	InputBufferAddr  uint64
	OutputBufferAddr uint64
	KVCacheAddr      uint64
	Stride           uint32
	MaxTokens        uint32
	BatchSize        uint32
	SequenceLength   uint32
	NumLayers        uint32
	HiddenSize       uint32
	NumHeads         uint32
	VocabSize        uint32
	PromptLength     uint32
	TaskID           uint32
	TaskType         uint32
	Flags            uint32
}

const (
	wordInputAddrLo  = 0
	wordInputAddrHi  = 1
	wordOutputAddrLo = 2
	wordOutputAddrHi = 3
	wordKVAddrLo     = 4
	wordKVAddrHi     = 5
	wordStride       = 6
	wordMaxTokens    = 7
	wordBatchSize    = 8
	wordSeqLen       = 9
	wordNumLayers    = 10
	wordHiddenSize   = 11
	wordNumHeads     = 12
	wordVocabSize    = 13
	wordPromptLen    = 14
	wordTaskID       = 15
	wordTaskType     = 16
	wordFlags        = 17

	// reservedStart is the first word of padding; words [reservedStart,
	// NumConfigWords) are always zero.
	reservedStart = 18
)

// Pack serializes c into the 38-word register block.
func Pack(c ConfigIn) [NumConfigWords]uint32 {
	var w [NumConfigWords]uint32

	w[wordInputAddrLo] = uint32(c.InputBufferAddr)
	w[wordInputAddrHi] = uint32(c.InputBufferAddr >> 32)
	w[wordOutputAddrLo] = uint32(c.OutputBufferAddr)
	w[wordOutputAddrHi] = uint32(c.OutputBufferAddr >> 32)
	w[wordKVAddrLo] = uint32(c.KVCacheAddr)
	w[wordKVAddrHi] = uint32(c.KVCacheAddr >> 32)
	w[wordStride] = c.Stride
	w[wordMaxTokens] = c.MaxTokens
	w[wordBatchSize] = c.BatchSize
	w[wordSeqLen] = c.SequenceLength
	w[wordNumLayers] = c.NumLayers
	w[wordHiddenSize] = c.HiddenSize
	w[wordNumHeads] = c.NumHeads
	w[wordVocabSize] = c.VocabSize
	w[wordPromptLen] = c.PromptLength
	w[wordTaskID] = c.TaskID
	w[wordTaskType] = c.TaskType
	w[wordFlags] = c.Flags
	// words[reservedStart:] left zero.

	return w
}

// Unpack is the inverse of Pack. Reserved words are ignored.
func Unpack(w [NumConfigWords]uint32) ConfigIn {
	return ConfigIn{
		InputBufferAddr:  uint64(w[wordInputAddrLo]) | uint64(w[wordInputAddrHi])<<32,
		OutputBufferAddr: uint64(w[wordOutputAddrLo]) | uint64(w[wordOutputAddrHi])<<32,
		KVCacheAddr:      uint64(w[wordKVAddrLo]) | uint64(w[wordKVAddrHi])<<32,
		Stride:           w[wordStride],
		MaxTokens:        w[wordMaxTokens],
		BatchSize:        w[wordBatchSize],
		SequenceLength:   w[wordSeqLen],
		NumLayers:        w[wordNumLayers],
		HiddenSize:       w[wordHiddenSize],
		NumHeads:         w[wordNumHeads],
		VocabSize:        w[wordVocabSize],
		PromptLength:     w[wordPromptLen],
		TaskID:           w[wordTaskID],
		TaskType:         w[wordTaskType],
		Flags:            w[wordFlags],
	}
}

// StatusOut is the logical view of the 128-bit status word.
type StatusOut struct {
	CurrentToken    uint32
	TokensGenerated uint32
	ErrorCode       uint32
	Flags           uint32
}

// Status flag bits.
const (
	StatusValid uint32 = 1 << 0
	StatusDone  uint32 = 1 << 1
	StatusError uint32 = 1 << 2
)

// Valid reports whether the VALID flag is set.
func (s StatusOut) Valid() bool { return s.Flags&StatusValid != 0 }

// Done reports whether the DONE flag is set.
func (s StatusOut) Done() bool { return s.Flags&StatusDone != 0 }

// Errored reports whether the ERROR flag is set.
func (s StatusOut) Errored() bool { return s.Flags&StatusError != 0 }

// PackStatus serializes s into the 4-word status block. Provided for
// symmetry and for the simulation backend, which must produce status words
// the same way the device would.
func PackStatus(s StatusOut) [NumStatusWords]uint32 {
	return [NumStatusWords]uint32{s.CurrentToken, s.TokensGenerated, s.ErrorCode, s.Flags}
}

// UnpackStatus deserializes the 4-word status block.
func UnpackStatus(w [NumStatusWords]uint32) StatusOut {
	return StatusOut{
		CurrentToken:    w[0],
		TokensGenerated: w[1],
		ErrorCode:       w[2],
		Flags:           w[3],
	}
}

// ConfigWordsChanged returns the sorted list of word indices that differ
// between old and updated, so that set_task_config can issue partial
// register writes instead of re-writing the full 38-word block.
func ConfigWordsChanged(old, updated [NumConfigWords]uint32) []int {
	var changed []int
	for i := range old {
		if old[i] != updated[i] {
			changed = append(changed, i)
		}
	}
	return changed
}
