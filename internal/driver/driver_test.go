package driver

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelhost/fpga-ctl/internal/constants"
	"github.com/accelhost/fpga-ctl/internal/framing"
	"github.com/accelhost/fpga-ctl/internal/memmgr"
	"github.com/accelhost/fpga-ctl/internal/regmap"
)

// newTestDriver builds a Driver over a SimulationBackend with small
// in-process input-buffer and KV-cache regions.
func newTestDriver(t *testing.T, inputBufSize uint64) (*Driver, *SimulationBackend, memmgr.Region, memmgr.Region) {
	t.Helper()

	mgr, err := memmgr.Reserve([]memmgr.Spec{
		{Kind: memmgr.InputBuffer, PhysAddr: 0x1000, Size: inputBufSize},
		{Kind: memmgr.KVCache, PhysAddr: 0x10000, Size: 4096},
	}, nil)
	require.NoError(t, err)

	input, _ := mgr.Region(memmgr.InputBuffer)
	kv, _ := mgr.Region(memmgr.KVCache)

	backend := NewSimulationBackend()
	return New(backend, input, kv, nil), backend, input, kv
}

func TestConfigureWritesAllConfigWords(t *testing.T) {
	d, backend, _, _ := newTestDriver(t, 256)

	err := d.Configure(0x1122_3344_5566_7788, 0x2000_0000, 0x3000_0000, 128, 2048)
	require.NoError(t, err)

	var words [framing.NumConfigWords]uint32
	for i := range words {
		w, err := backend.Read32(regmap.ConfigWordOffset(i))
		require.NoError(t, err)
		words[i] = w
	}

	got := framing.Unpack(words)
	assert.Equal(t, uint64(0x1122_3344_5566_7788), got.InputBufferAddr)
	assert.Equal(t, uint64(0x2000_0000), got.OutputBufferAddr)
	assert.Equal(t, uint64(0x3000_0000), got.KVCacheAddr)
	assert.Equal(t, uint32(128), got.Stride)
	assert.Equal(t, uint32(2048), got.MaxTokens)
}

func TestSetTaskConfigWritesOnlyChangedWords(t *testing.T) {
	d, backend, _, _ := newTestDriver(t, 256)
	require.NoError(t, d.Configure(0x1000, 0x2000, 0x3000, 64, 50))

	// Poison a word the task config never touches; a full re-write of
	// the block would restore it, a partial write must leave it alone.
	sentinelOffset := regmap.ConfigWordOffset(8) // batch_size word
	require.NoError(t, backend.Write32(sentinelOffset, 0xDEAD_BEEF))

	require.NoError(t, d.SetTaskConfig(42, 7, framing.TaskTypeGenerate))

	w, err := backend.Read32(sentinelOffset)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEAD_BEEF), w, "untouched word must not be re-written")

	taskID, err := backend.Read32(regmap.ConfigWordOffset(15))
	require.NoError(t, err)
	assert.Equal(t, uint32(42), taskID)

	promptLen, err := backend.Read32(regmap.ConfigWordOffset(14))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), promptLen)
}

func TestStartInferenceStagesPromptAndStarts(t *testing.T) {
	d, backend, input, _ := newTestDriver(t, 256)
	require.NoError(t, d.Configure(0x1000, 0x2000, 0x3000, 64, 50))

	prompt := []uint32{'h', 'i', '!'}
	require.NoError(t, d.StartInference(7, prompt))

	buf := input.Bytes()
	for i, tok := range prompt {
		assert.Equal(t, tok, binary.LittleEndian.Uint32(buf[i*4:]))
	}

	// The start pulse clears IDLE in the simulated AP_CTRL.
	ctrl, err := backend.Read32(regmap.OffsetAPCtrl)
	require.NoError(t, err)
	assert.Zero(t, ctrl&regmap.CtrlIdle)
}

func TestStartInferenceTruncatesOversizePrompt(t *testing.T) {
	d, backend, input, _ := newTestDriver(t, 64) // room for 16 tokens

	prompt := make([]uint32, 100)
	for i := range prompt {
		prompt[i] = uint32(i + 1)
	}
	require.NoError(t, d.StartInference(1, prompt))

	buf := input.Bytes()
	for i := 0; i < 16; i++ {
		assert.Equal(t, uint32(i+1), binary.LittleEndian.Uint32(buf[i*4:]))
	}

	// prompt_length reflects the truncated count, not the original.
	promptLen, err := backend.Read32(regmap.ConfigWordOffset(14))
	require.NoError(t, err)
	assert.Equal(t, uint32(16), promptLen)
}

func TestNextTokenNeverDoubleCounts(t *testing.T) {
	d, backend, _, _ := newTestDriver(t, 256)
	backend.EOSAfter = 4
	require.NoError(t, d.StartInference(1, []uint32{'x'}))

	var yielded []uint32
	// Poll far more often than the simulated device advances would allow
	// duplicates to show up if last-returned tracking were broken.
	for i := 0; i < 20; i++ {
		tok, ok, err := d.NextToken()
		require.NoError(t, err)
		if ok {
			yielded = append(yielded, tok)
		}
	}

	require.NotEmpty(t, yielded)
	assert.Equal(t, constants.EOSToken, yielded[len(yielded)-1])
	for i := 1; i < len(yielded); i++ {
		assert.NotEqual(t, yielded[i-1], yielded[i], "token yielded twice at %d", i)
	}
	assert.Equal(t, []uint32{1, 2, 3, constants.EOSToken}, yielded)
}

func TestNextTokenStopsAfterDone(t *testing.T) {
	d, backend, _, _ := newTestDriver(t, 256)
	backend.EOSAfter = 2
	require.NoError(t, d.StartInference(1, []uint32{'x'}))

	sawEOS := false
	for i := 0; i < 10; i++ {
		tok, ok, err := d.NextToken()
		require.NoError(t, err)
		if ok && tok == constants.EOSToken {
			sawEOS = true
			continue
		}
		if sawEOS {
			assert.False(t, ok, "no token may be yielded after EOS")
		}
	}
	assert.True(t, sawEOS)

	done, err := d.IsDone()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestResetClearsKVCacheAndState(t *testing.T) {
	d, backend, _, kv := newTestDriver(t, 256)
	backend.EOSAfter = 4

	copy(kv.Bytes(), []byte{1, 2, 3, 4})
	require.NoError(t, d.StartInference(1, []uint32{'x'}))
	_, _, err := d.NextToken()
	require.NoError(t, err)

	require.NoError(t, d.Reset())
	require.NoError(t, d.Reset()) // idempotent

	for i, b := range kv.Bytes()[:16] {
		assert.Zerof(t, b, "kv byte %d not cleared", i)
	}

	idle, err := d.IsIdle()
	require.NoError(t, err)
	assert.True(t, idle)

	// A fresh generation starts counting from scratch.
	require.NoError(t, d.StartInference(2, []uint32{'y'}))
	tok, ok, err := d.NextToken()
	require.NoError(t, err)
	if ok {
		assert.Equal(t, uint32(1), tok)
	}
}

func TestBackendRejectsBadOffsets(t *testing.T) {
	backend := NewSimulationBackend()

	_, err := backend.Read32(-4)
	assert.Error(t, err)
	_, err = backend.Read32(regmap.WindowSize)
	assert.Error(t, err)
	_, err = backend.Read32(0x02) // unaligned
	assert.Error(t, err)
	assert.Error(t, backend.Write32(regmap.WindowSize, 1))
}
