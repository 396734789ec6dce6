package memmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpecs() []Spec {
	return []Spec{
		{Kind: InputBuffer, PhysAddr: 0x1000_0000, Size: 16 << 10},
		{Kind: OutputBuffer, PhysAddr: 0x1000_4000, Size: 16 << 10},
		{Kind: KVCache, PhysAddr: 0x3000_0000, Size: 1 << 20},
		{Kind: Weights, PhysAddr: 0x4000_0000, Size: 1 << 20},
	}
}

func TestReserveAndLookup(t *testing.T) {
	m, err := Reserve(validSpecs(), nil)
	require.NoError(t, err)

	r, ok := m.Region(InputBuffer)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000_0000), r.PhysAddr())
	assert.Len(t, r.Bytes(), 16<<10)
}

func TestReserveRejectsOverlap(t *testing.T) {
	specs := []Spec{
		{Kind: InputBuffer, PhysAddr: 0x1000_0000, Size: 0x1000},
		{Kind: OutputBuffer, PhysAddr: 0x1000_0800, Size: 0x1000},
	}
	_, err := Reserve(specs, nil)
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestReserveRejectsMisalignment(t *testing.T) {
	specs := []Spec{
		{Kind: InputBuffer, PhysAddr: 0x1000_0001, Size: 0x1000},
	}
	_, err := Reserve(specs, nil)
	assert.ErrorIs(t, err, ErrMisaligned)

	specs = []Spec{
		{Kind: InputBuffer, PhysAddr: 0x1000_0000, Size: 100},
	}
	_, err = Reserve(specs, nil)
	assert.ErrorIs(t, err, ErrMisaligned)
}

func TestReleaseZeroesAndClearsRegions(t *testing.T) {
	m, err := Reserve(validSpecs(), nil)
	require.NoError(t, err)

	r, _ := m.Region(KVCache)
	for i := range r.Bytes() {
		r.Bytes()[i] = 0xAB
	}

	m.Release()

	assert.Equal(t, make([]byte, len(r.Bytes())), r.Bytes(), "released region must be zeroed")
	_, ok := m.Region(KVCache)
	assert.False(t, ok)
}

func TestReserveUsesCustomAllocator(t *testing.T) {
	called := 0
	alloc := func(s Spec) ([]byte, error) {
		called++
		return make([]byte, s.Size), nil
	}
	_, err := Reserve(validSpecs(), alloc)
	require.NoError(t, err)
	assert.Equal(t, 4, called)
}
