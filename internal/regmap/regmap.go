// Package regmap holds the compile-time register layout of the accelerator's
// memory-mapped control window.
package regmap

// WindowSize is the size of the accelerator's register window as mapped by
// the host. The window's default base address is
// constants.RegisterWindowBase in internal/constants.
const WindowSize = 4096

// Byte offsets within the register window. All registers are 32-bit aligned.
const (
	OffsetAPCtrl   = 0x00
	OffsetGIE      = 0x04
	OffsetIER      = 0x08
	OffsetISR      = 0x0C
	OffsetConfigIn = 0x10 // 38 consecutive words, 0x10..0xA4
	OffsetStatus   = 0xAC // 4 consecutive words, 0xAC..0xB8
	OffsetValid    = 0xBC
	OffsetIRQClear = 0xD4
)

// NumConfigWords and NumStatusWords size the ConfigIn / StatusOut register
// blocks described in the data model.
const (
	NumConfigWords = 38
	NumStatusWords = 4
)

// AP_CTRL control/status bits.
const (
	CtrlStart       uint32 = 0x01
	CtrlDone        uint32 = 0x02
	CtrlIdle        uint32 = 0x04
	CtrlReady       uint32 = 0x08
	CtrlAutoRestart uint32 = 0x80
	CtrlInterrupt   uint32 = 0x200
)

// ISR/IER bit positions, dispatched by the interrupt service.
const (
	IRQDone       uint32 = 1 << 0
	IRQReady      uint32 = 1 << 1
	IRQTokenReady uint32 = 1 << 2
	IRQError      uint32 = 1 << 3
)

// StatusOut flag bits (word index 3 of the status block).
const (
	StatusFlagValid uint32 = 1 << 0
	StatusFlagDone  uint32 = 1 << 1
	StatusFlagError uint32 = 1 << 2
)

// ConfigWordOffset returns the byte offset of config word i (0-indexed)
// within the register window.
func ConfigWordOffset(i int) int {
	return OffsetConfigIn + i*4
}

// StatusWordOffset returns the byte offset of status word i (0-indexed)
// within the register window.
func StatusWordOffset(i int) int {
	return OffsetStatus + i*4
}
