package driver

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/accelhost/fpga-ctl/internal/constants"
	"github.com/accelhost/fpga-ctl/internal/errs"
	"github.com/accelhost/fpga-ctl/internal/framing"
	"github.com/accelhost/fpga-ctl/internal/regmap"
)

// Backend abstracts the accelerator's 32-bit register window. All reads
// and writes target a single 4-byte-aligned offset and must behave as a
// volatile access: no caching, no reordering across the call boundary.
// Two implementations exist, selected once at construction time: a real
// mmap-backed HardwareBackend and an in-process SimulationBackend used
// when no accelerator is present.
type Backend interface {
	Read32(offset int) (uint32, error)
	Write32(offset int, value uint32) error
	Close() error
}

// HardwareBackend maps the accelerator's register window from a
// memory-mapped character device (e.g. a UIO device's mmap-able resource
// file) and performs volatile 32-bit accesses against the mapping.
type HardwareBackend struct {
	file *os.File
	mem  []byte
}

// NewHardwareBackend opens devPath and mmaps size bytes starting at
// byteOffset within it (a UIO device typically maps its resource at
// offset 0 of /dev/uioN's mmap-able region; byteOffset is provided for
// platforms that multiplex several windows behind one descriptor).
func NewHardwareBackend(devPath string, byteOffset int64, size int) (*HardwareBackend, error) {
	f, err := os.OpenFile(devPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errs.Wrap("driver.open", errs.CodeDeviceUnavailable, fmt.Errorf("open %s: %w", devPath, err))
	}

	mem, err := unix.Mmap(int(f.Fd()), byteOffset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errs.Wrap("driver.open", errs.CodeDeviceUnavailable, fmt.Errorf("mmap %s: %w", devPath, err))
	}

	return &HardwareBackend{file: f, mem: mem}, nil
}

func (h *HardwareBackend) checkOffset(offset int) error {
	if offset < 0 || offset+4 > len(h.mem) || offset%4 != 0 {
		return fmt.Errorf("driver: register offset 0x%x out of range/unaligned", offset)
	}
	return nil
}

// Read32 performs a volatile 32-bit load from the register window.
func (h *HardwareBackend) Read32(offset int) (uint32, error) {
	if err := h.checkOffset(offset); err != nil {
		return 0, err
	}
	ptr := (*uint32)(unsafe.Pointer(&h.mem[offset]))
	return atomic.LoadUint32(ptr), nil
}

// Write32 performs a volatile 32-bit store to the register window.
func (h *HardwareBackend) Write32(offset int, value uint32) error {
	if err := h.checkOffset(offset); err != nil {
		return err
	}
	ptr := (*uint32)(unsafe.Pointer(&h.mem[offset]))
	atomic.StoreUint32(ptr, value)
	return nil
}

// Close unmaps the register window and closes the backing descriptor.
func (h *HardwareBackend) Close() error {
	err := unix.Munmap(h.mem)
	if cerr := h.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// DefaultEOSAfter is the simulated tick on which SimulationBackend yields
// EOS_TOKEN, absent an explicit override: ticks 1..DefaultEOSAfter-1 yield
// ordinary tokens.
const DefaultEOSAfter = 8

// SimulationBackend substitutes in-process storage and a synthetic status
// progression for hosts without memory-mapped accelerator access. It
// derives every yielded token strictly from an internal tokens-generated
// counter; it never fabricates a token independent of that counter (see
// the accelerator driver's anti-double-count handling).
type SimulationBackend struct {
	mu sync.Mutex

	regs [regmap.WindowSize / 4]uint32

	generating bool
	finishing  bool

	tokensGenerated uint32
	lastToken       uint32

	// EOSAfter is the tick (poll_status call while generating) on which
	// the simulated device yields EOS_TOKEN.
	// Configurable for deterministic tests; defaults to DefaultEOSAfter.
	EOSAfter uint32
}

// NewSimulationBackend constructs a simulation backend with the default
// EOS cadence.
func NewSimulationBackend() *SimulationBackend {
	s := &SimulationBackend{EOSAfter: DefaultEOSAfter}
	s.regs[regmap.OffsetAPCtrl/4] = regmap.CtrlIdle
	return s
}

func (s *SimulationBackend) idx(offset int) int { return offset / 4 }

// Read32 returns the current value of the addressed register. Reading the
// status-valid register advances the simulated generation by one tick.
func (s *SimulationBackend) Read32(offset int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset < 0 || offset+4 > regmap.WindowSize || offset%4 != 0 {
		return 0, fmt.Errorf("driver: register offset 0x%x out of range/unaligned", offset)
	}

	if offset == regmap.OffsetValid {
		s.tick()
	}
	return s.regs[s.idx(offset)], nil
}

// Write32 stores value at offset, applying the accelerator's documented
// side effects for AP_CTRL (start generation) and the IRQ-clear register
// (reset).
func (s *SimulationBackend) Write32(offset int, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset < 0 || offset+4 > regmap.WindowSize || offset%4 != 0 {
		return fmt.Errorf("driver: register offset 0x%x out of range/unaligned", offset)
	}

	prev := s.regs[s.idx(offset)]
	s.regs[s.idx(offset)] = value

	switch offset {
	case regmap.OffsetAPCtrl:
		if value&regmap.CtrlStart != 0 {
			s.generating = true
			s.finishing = false
			s.tokensGenerated = 0
			s.regs[s.idx(offset)] = value &^ (regmap.CtrlDone | regmap.CtrlIdle)
		} else {
			// DONE and IDLE are device-owned; host writes cannot clear them.
			s.regs[s.idx(offset)] = value&^(regmap.CtrlDone|regmap.CtrlIdle) | prev&(regmap.CtrlDone|regmap.CtrlIdle)
		}
	case regmap.OffsetIRQClear:
		if value == 0xFFFF_FFFF {
			s.resetLocked()
		}
	}
	return nil
}

func (s *SimulationBackend) resetLocked() {
	s.generating = false
	s.finishing = false
	s.tokensGenerated = 0
	s.lastToken = 0
	s.regs[regmap.OffsetISR/4] = 0
	s.regs[regmap.OffsetValid/4] = 0
	s.regs[regmap.OffsetAPCtrl/4] = regmap.CtrlIdle
	for i := 0; i < regmap.NumStatusWords; i++ {
		s.regs[regmap.OffsetStatus/4+i] = 0
	}
}

// tick advances the simulated generation by one token, or asserts the
// DONE flag on the tick immediately following EOS. Must be called with
// mu held.
func (s *SimulationBackend) tick() {
	eosAfter := s.EOSAfter
	if eosAfter == 0 {
		eosAfter = DefaultEOSAfter
	}

	if s.finishing {
		words := framing.PackStatus(framing.StatusOut{
			CurrentToken:    s.lastToken,
			TokensGenerated: s.tokensGenerated,
			Flags:           framing.StatusValid | framing.StatusDone,
		})
		for i, w := range words {
			s.regs[regmap.OffsetStatus/4+i] = w
		}
		s.regs[regmap.OffsetValid/4] = 1
		s.regs[regmap.OffsetAPCtrl/4] = regmap.CtrlDone | regmap.CtrlIdle
		s.finishing = false
		return
	}

	if !s.generating {
		return
	}

	s.tokensGenerated++
	var token uint32
	if s.tokensGenerated >= eosAfter {
		token = constants.EOSToken
		s.generating = false
		s.finishing = true
	} else {
		token = s.tokensGenerated
	}
	s.lastToken = token

	words := framing.PackStatus(framing.StatusOut{
		CurrentToken:    token,
		TokensGenerated: s.tokensGenerated,
		Flags:           framing.StatusValid,
	})
	for i, w := range words {
		s.regs[regmap.OffsetStatus/4+i] = w
	}
	s.regs[regmap.OffsetValid/4] = 1
}

// Close is a no-op for the simulation backend.
func (s *SimulationBackend) Close() error { return nil }

var (
	_ Backend = (*HardwareBackend)(nil)
	_ Backend = (*SimulationBackend)(nil)
)
