package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/accelhost/fpga-ctl/internal/constants"
	"github.com/accelhost/fpga-ctl/internal/driver"
	"github.com/accelhost/fpga-ctl/internal/logging"
	"github.com/accelhost/fpga-ctl/internal/memmgr"
	"github.com/accelhost/fpga-ctl/internal/regmap"
	"github.com/accelhost/fpga-ctl/internal/weights"
)

// memoryLayout returns the DDR reservations shared with the
// accelerator. The weights region size comes from the -weights-size
// flag; the remaining addresses and sizes are compiled-in
// internal/constants defaults.
func memoryLayout(weightsSize uint64) []memmgr.Spec {
	return []memmgr.Spec{
		{Kind: memmgr.Weights, PhysAddr: constants.DefaultWeightsPhysAddr, Size: weightsSize},
		{Kind: memmgr.KVCache, PhysAddr: constants.DefaultKVCachePhysAddr, Size: constants.DefaultKVCacheRegionSize},
		{Kind: memmgr.InputBuffer, PhysAddr: constants.DefaultInputBufferPhysAddr, Size: constants.DefaultInputBufferSize},
		{Kind: memmgr.OutputBuffer, PhysAddr: constants.DefaultOutputBufferPhysAddr, Size: constants.DefaultOutputBufferSize},
	}
}

// reserveMemory reserves the four DDR regions as plain host-process
// memory (alloc=nil), which is how both SimulationBackend and a real
// HardwareBackend's DMA-visible buffers are modeled when the process
// isn't itself running against a DMA-coherent allocator.
func reserveMemory(logger *logging.Logger, weightsSize uint64) (*memmgr.Manager, error) {
	mgr, err := memmgr.Reserve(memoryLayout(weightsSize), nil)
	if err != nil {
		return nil, err
	}
	for _, kind := range []memmgr.RegionKind{memmgr.Weights, memmgr.KVCache, memmgr.InputBuffer, memmgr.OutputBuffer} {
		r, _ := mgr.Region(kind)
		logger.Info("region reserved", "kind", kind, "phys_addr", fmt.Sprintf("0x%x", r.PhysAddr()), "size", r.Size())
	}
	return mgr, nil
}

// newBackend selects HardwareBackend when devPath is non-empty, else
// SimulationBackend.
func newBackend(devPath string, logger *logging.Logger) (driver.Backend, error) {
	if devPath == "" {
		logger.Info("no device path given, running in simulation mode")
		return driver.NewSimulationBackend(), nil
	}
	b, err := driver.NewHardwareBackend(devPath, 0, regmap.WindowSize)
	if err != nil {
		return nil, err
	}
	logger.Info("mapped hardware register window", "device", devPath, "size", regmap.WindowSize)
	return b, nil
}

// loadWeights parses and stages modelPath into the weights region. A
// weight-load failure degrades to simulation mode without weights
// rather than aborting the process; the caller logs and continues.
func loadWeights(modelPath string, region memmgr.Region, logger *logging.Logger) error {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return err
	}

	model, checksums, err := weights.Parse(data)
	if err != nil {
		return err
	}

	for _, c := range checksums {
		logger.Info("weight checksum", "name", c.Name, "sha256", fmt.Sprintf("%x", c.SHA256))
	}

	required := weights.RequiredDDR(model)
	if required > region.Size() {
		return fmt.Errorf("weights: model requires %d bytes, region has %d: %w", required, region.Size(), weights.ErrInsufficientDDR)
	}

	if _, err := weights.Stage(model, region); err != nil {
		return err
	}
	logger.Info("weights staged", "bytes", required, "layers", len(model.Layers))
	return nil
}

// parseSize parses a size string like "64M", "1G", "512K".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)

	multiplier := int64(1)
	numStr := s
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
