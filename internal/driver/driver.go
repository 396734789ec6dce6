// Package driver owns the accelerator's register window and exposes the
// operations the Engine drives a generation through: configure the device
// once at startup, stage a task's configuration and prompt, start
// inference, poll status, and stream tokens back.
package driver

import (
	"encoding/binary"
	"fmt"

	"github.com/accelhost/fpga-ctl/internal/errs"
	"github.com/accelhost/fpga-ctl/internal/framing"
	"github.com/accelhost/fpga-ctl/internal/logging"
	"github.com/accelhost/fpga-ctl/internal/memmgr"
	"github.com/accelhost/fpga-ctl/internal/regmap"
)

// Driver owns the register window (via Backend) plus borrowed views of the
// input-buffer and KV-cache DDR regions. It outlives no longer than the
// Memory Manager that published those regions.
type Driver struct {
	backend Backend
	logger  *logging.Logger

	inputBuffer memmgr.Region
	kvCache     memmgr.Region

	cfg      framing.ConfigIn
	cfgWords [framing.NumConfigWords]uint32

	cachedStatus       framing.StatusOut
	lastReturnedTokens uint32
}

// New constructs a Driver around backend, with borrowed views of the
// input buffer and KV cache regions for prompt staging and reset.
func New(backend Backend, inputBuffer, kvCache memmgr.Region, logger *logging.Logger) *Driver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Driver{
		backend:     backend,
		logger:      logger.WithComponent("driver"),
		inputBuffer: inputBuffer,
		kvCache:     kvCache,
	}
}

// Configure populates the startup-fixed ConfigIn fields (buffer/cache
// addresses, stride, max_tokens) and writes all 38 config words. Called
// once; it does not start the device.
func (d *Driver) Configure(inputAddr, outputAddr, kvCacheAddr uint64, stride, maxTokens uint32) error {
	d.cfg.InputBufferAddr = inputAddr
	d.cfg.OutputBufferAddr = outputAddr
	d.cfg.KVCacheAddr = kvCacheAddr
	d.cfg.Stride = stride
	d.cfg.MaxTokens = maxTokens

	words := framing.Pack(d.cfg)
	for i, w := range words {
		if err := d.backend.Write32(regmap.ConfigWordOffset(i), w); err != nil {
			return errs.Wrap("driver.configure", errs.CodeDeviceUnavailable, fmt.Errorf("write word %d: %w", i, err))
		}
	}
	d.cfgWords = words
	d.logger.Debug("configured", "input_addr", inputAddr, "output_addr", outputAddr, "kv_cache_addr", kvCacheAddr, "stride", stride, "max_tokens", maxTokens)
	return nil
}

// SetTaskConfig updates the task-scoped ConfigIn fields and writes only
// the words whose bit ranges changed, supporting partial writes during
// per-task reconfiguration.
func (d *Driver) SetTaskConfig(taskID uint32, promptLength uint32, taskType uint32) error {
	d.cfg.TaskID = taskID
	d.cfg.PromptLength = promptLength
	d.cfg.TaskType = taskType

	words := framing.Pack(d.cfg)
	changed := framing.ConfigWordsChanged(d.cfgWords, words)
	for _, i := range changed {
		if err := d.backend.Write32(regmap.ConfigWordOffset(i), words[i]); err != nil {
			return errs.Wrap("driver.set_task_config", errs.CodeDeviceUnavailable, fmt.Errorf("write word %d: %w", i, err))
		}
	}
	d.cfgWords = words
	d.logger.Debug("set_task_config", "task_id", taskID, "prompt_length", promptLength, "words_changed", len(changed))
	return nil
}

// StartInference stages promptTokens into the input buffer (truncating if
// they exceed its capacity), sets the task configuration, and asserts
// AP_CTRL_START.
func (d *Driver) StartInference(taskID uint32, promptTokens []uint32) error {
	capacity := len(d.inputBuffer.Bytes()) / 4
	staged := promptTokens
	if len(promptTokens) > capacity {
		d.logger.Warn("prompt truncated to input buffer capacity",
			"task_id", taskID, "original_length", len(promptTokens), "truncated_length", capacity)
		staged = promptTokens[:capacity]
	}

	if err := d.SetTaskConfig(taskID, uint32(len(staged)), framing.TaskTypeGenerate); err != nil {
		return err
	}

	buf := d.inputBuffer.Bytes()
	for i, tok := range staged {
		binary.LittleEndian.PutUint32(buf[i*4:], tok)
	}

	d.lastReturnedTokens = 0
	d.cachedStatus = framing.StatusOut{}

	if err := d.backend.Write32(regmap.OffsetAPCtrl, regmap.CtrlStart); err != nil {
		return errs.Wrap("driver.start_inference", errs.CodeDeviceUnavailable, err)
	}
	d.logger.Info("start_inference", "task_id", taskID, "prompt_length", len(staged))
	return nil
}

// PollStatus reads the status-valid register; if set, it reads the four
// status words and refreshes the cached StatusOut.
func (d *Driver) PollStatus() (framing.StatusOut, error) {
	valid, err := d.backend.Read32(regmap.OffsetValid)
	if err != nil {
		return framing.StatusOut{}, errs.Wrap("driver.poll_status", errs.CodeDeviceUnavailable, err)
	}
	if valid&0x1 == 0 {
		return d.cachedStatus, nil
	}

	var words [framing.NumStatusWords]uint32
	for i := range words {
		w, err := d.backend.Read32(regmap.StatusWordOffset(i))
		if err != nil {
			return framing.StatusOut{}, errs.Wrap("driver.poll_status", errs.CodeDeviceUnavailable, fmt.Errorf("word %d: %w", i, err))
		}
		words[i] = w
	}
	d.cachedStatus = framing.UnpackStatus(words)
	return d.cachedStatus, nil
}

// NextToken polls status and yields the current token exactly once per
// advance of tokens_generated. It never double-counts a token already
// returned and never fabricates a token independent of the authoritative
// tokens_generated counter.
func (d *Driver) NextToken() (uint32, bool, error) {
	status, err := d.PollStatus()
	if err != nil {
		return 0, false, err
	}
	if !status.Valid() || status.Done() {
		return 0, false, nil
	}
	if status.TokensGenerated <= d.lastReturnedTokens {
		return 0, false, nil
	}
	d.lastReturnedTokens = status.TokensGenerated
	return status.CurrentToken, true, nil
}

// IsDone reports whether AP_CTRL's DONE bit is set.
func (d *Driver) IsDone() (bool, error) {
	v, err := d.backend.Read32(regmap.OffsetAPCtrl)
	if err != nil {
		return false, err
	}
	return v&regmap.CtrlDone != 0, nil
}

// IsIdle reports whether AP_CTRL's IDLE bit is set.
func (d *Driver) IsIdle() (bool, error) {
	v, err := d.backend.Read32(regmap.OffsetAPCtrl)
	if err != nil {
		return false, err
	}
	return v&regmap.CtrlIdle != 0, nil
}

// Reset writes all-ones to the IRQ-clear register, zeroes AP_CTRL, and
// clears the KV cache region. It is idempotent.
func (d *Driver) Reset() error {
	if err := d.backend.Write32(regmap.OffsetIRQClear, 0xFFFF_FFFF); err != nil {
		return errs.Wrap("driver.reset", errs.CodeDeviceUnavailable, fmt.Errorf("irq clear: %w", err))
	}
	if err := d.backend.Write32(regmap.OffsetAPCtrl, 0); err != nil {
		return errs.Wrap("driver.reset", errs.CodeDeviceUnavailable, fmt.Errorf("ap_ctrl: %w", err))
	}
	for i := range d.kvCache.Bytes() {
		d.kvCache.Bytes()[i] = 0
	}
	d.lastReturnedTokens = 0
	d.cachedStatus = framing.StatusOut{}
	d.logger.Info("reset")
	return nil
}
