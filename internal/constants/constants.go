// Package constants holds the tunable defaults for the control plane.
package constants

import "time"

// Queue capacities.
const (
	TaskQueueCapacity    = 100
	CommandQueueCapacity = 10
)

// Generation loop tuning.
const (
	// DefaultMaxTokens bounds a single generation; configurable per engine.
	DefaultMaxTokens = 50

	// EOSToken is the sentinel the driver returns to signal end-of-sequence.
	EOSToken uint32 = 0xFFFF_FFFF

	// IdlePollInterval is how long the engine sleeps when both queues are
	// empty, to avoid busy-spinning the top-level Idle loop.
	IdlePollInterval = 100 * time.Millisecond

	// TokenPollInterval paces polling of the driver during an active
	// generation in the non-interrupt-driven variant.
	TokenPollInterval = 50 * time.Millisecond
)

// Register window geometry.
const (
	RegisterWindowBase = 0x43C0_0000
	RegisterWindowSize = 4096 // 4 KiB
)

// UIO interrupt servicing.
const (
	// IRQPollTimeout bounds how long the interrupt service blocks on the
	// UIO descriptor before re-checking for shutdown.
	IRQPollTimeout = 1 * time.Second
)

// Memory map defaults for the DDR regions shared with the accelerator.
// The four regions are laid out back to back and must stay disjoint:
// weights end at 0x5000_0000, the KV cache at 0x7000_0000.
const (
	DefaultWeightsPhysAddr      = 0x1000_0000
	DefaultWeightsRegionSize    = 1 << 30 // 1 GiB
	DefaultKVCachePhysAddr      = 0x5000_0000
	DefaultKVCacheRegionSize    = 512 << 20 // 512 MiB
	DefaultInputBufferPhysAddr  = 0x7000_0000
	DefaultInputBufferSize      = 16 << 10 // 16 KiB
	DefaultOutputBufferPhysAddr = 0x7001_0000
	DefaultOutputBufferSize     = 16 << 10 // 16 KiB

	// MinRegionAlignment is the minimum natural alignment required of
	// every memory-manager region.
	MinRegionAlignment = 64
)

// DeviceStartupDelay is a settle time for the accelerator after reset.
// Nothing in the control plane waits on it: Driver.Reset returns as soon
// as its register writes and KV-cache clear complete.
const DeviceStartupDelay = 50 * time.Millisecond
