package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelhost/fpga-ctl/internal/constants"
	"github.com/accelhost/fpga-ctl/internal/memmgr"
)

// A zero-argument start must bring up all four regions: the default
// layout has to be disjoint and aligned or the process dies before the
// shell ever reads a line.
func TestDefaultMemoryLayoutReserves(t *testing.T) {
	mgr, err := memmgr.Reserve(memoryLayout(constants.DefaultWeightsRegionSize), nil)
	require.NoError(t, err)

	for _, kind := range []memmgr.RegionKind{memmgr.Weights, memmgr.KVCache, memmgr.InputBuffer, memmgr.OutputBuffer} {
		r, ok := mgr.Region(kind)
		require.True(t, ok, "region %s not reserved", kind)
		assert.NotZero(t, r.Size(), "region %s has zero size", kind)
	}

	weights, _ := mgr.Region(memmgr.Weights)
	kv, _ := mgr.Region(memmgr.KVCache)
	assert.LessOrEqual(t, weights.PhysAddr()+weights.Size(), kv.PhysAddr(),
		"weights region must end at or before the KV cache")
}

func TestParseSize(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int64
	}{
		{"64", 64},
		{"512K", 512 << 10},
		{"64M", 64 << 20},
		{"1G", 1 << 30},
	} {
		got, err := parseSize(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := parseSize("12Q")
	assert.Error(t, err)
}
