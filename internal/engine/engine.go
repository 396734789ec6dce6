// Package engine implements the control-plane state machine: it
// consumes the task and command queues, drives the
// accelerator through the Driver abstraction, streams detokenized
// output, and honors out-of-band Stop/Reset/Shutdown commands.
package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/accelhost/fpga-ctl/internal/constants"
	"github.com/accelhost/fpga-ctl/internal/logging"
	"github.com/accelhost/fpga-ctl/internal/metrics"
	"github.com/accelhost/fpga-ctl/internal/queue"
)

// Status is the engine's top-level state.
type Status int

const (
	StatusIdle Status = iota
	StatusGenerating
	StatusShuttingDown
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusGenerating:
		return "generating"
	case StatusShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// CommandKind tags a Command's action.
type CommandKind int

const (
	CmdStop CommandKind = iota
	CmdReset
	CmdShutdown
)

// Task is a single accepted generation request.
type Task struct {
	ID     uint32
	Prompt string
}

// Command is an out-of-band control signal.
type Command struct {
	Kind CommandKind
}

// Status markers emitted verbatim to the output sink.
const (
	NoticeGenerating      = "[Generating] "
	NoticeEOS             = "[EOS]\n"
	NoticeAborted         = "[Aborted]\n"
	NoticeMemoryCleared   = "[Memory cleared]\n"
	NoticeMaxTokens       = "[Max tokens reached]\n"
	NoticeTaskQueueFull   = "[Warning] Task queue full, dropping request\n"
)

// Driver is the subset of *driver.Driver the engine drives a generation
// through. Accepting an interface lets tests substitute a fake
// implementation without a register-mapped backend.
type Driver interface {
	StartInference(taskID uint32, promptTokens []uint32) error
	NextToken() (uint32, bool, error)
	IsIdle() (bool, error)
	Reset() error
}

// Tokenizer stands in for the out-of-scope production tokenizer.
type Tokenizer interface {
	Encode(prompt string) []uint32
	Decode(token uint32) (string, bool)
}

// Config tunes the generation loop.
type Config struct {
	// MaxTokens bounds the number of tokens actually streamed per
	// generation, not the number of poll iterations.
	MaxTokens uint32
	// IdlePollInterval is how long the top-level loop sleeps when both
	// queues are empty.
	IdlePollInterval time.Duration
	// TokenPollInterval paces polling of the driver during generation.
	TokenPollInterval time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         constants.DefaultMaxTokens,
		IdlePollInterval:  constants.IdlePollInterval,
		TokenPollInterval: constants.TokenPollInterval,
	}
}

// State is the engine's externally observable state snapshot, exported
// for Info() and tests.
type State struct {
	Status          Status
	CurrentTaskID   uint32
	HasCurrentTask  bool
	CancelFlag      bool
	ResetPending    bool
}

// Info is a supplemental status snapshot surfaced for a future shell
// status command and for tests.
type Info struct {
	State           State
	TokensGenerated uint64
	Uptime          time.Duration
}

// Engine is the host-side control loop.
type Engine struct {
	driver    Driver
	tokenizer Tokenizer
	tasks     *queue.Ring[Task]
	commands  *queue.Ring[Command]
	out       io.Writer
	logger    *logging.Logger
	metrics   *metrics.Metrics
	cfg       Config

	state     State
	startTime time.Time

	// wake, when non-nil, is waited on in the generation loop alongside
	// the token poll interval, so a signal on it ends the wait early and
	// an interrupt-driven variant shortens the poll latency. The polling
	// cadence itself is unaffected when wake is nil.
	wake <-chan struct{}
}

// New constructs an Engine. A nil logger defaults to logging.Default();
// a nil metrics.Metrics is allocated fresh.
func New(driver Driver, tokenizer Tokenizer, tasks *queue.Ring[Task], commands *queue.Ring[Command], out io.Writer, logger *logging.Logger, m *metrics.Metrics, cfg Config) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = constants.DefaultMaxTokens
	}
	if cfg.IdlePollInterval == 0 {
		cfg.IdlePollInterval = constants.IdlePollInterval
	}
	if cfg.TokenPollInterval == 0 {
		cfg.TokenPollInterval = constants.TokenPollInterval
	}
	return &Engine{
		driver:    driver,
		tokenizer: tokenizer,
		tasks:     tasks,
		commands:  commands,
		out:       out,
		logger:    logger.WithComponent("engine"),
		metrics:   m,
		cfg:       cfg,
		state:     State{Status: StatusIdle},
		startTime: time.Now(),
	}
}

// WithWake attaches a wake channel (e.g. fed by the interrupt service's
// DONE/TOKEN_READY callbacks) that shortens the generation loop's poll
// wait. Must be called before Run.
func (e *Engine) WithWake(wake <-chan struct{}) *Engine {
	e.wake = wake
	return e
}

// Metrics returns the engine's metrics sink.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// Info returns a point-in-time snapshot of engine state.
func (e *Engine) Info() Info {
	return Info{
		State:           e.state,
		TokensGenerated: e.metrics.Snapshot().TokensGenerated,
		Uptime:          time.Since(e.startTime),
	}
}

// Run drives the engine until a Shutdown command is observed (either at
// top level or mid-generation) or ctx is canceled. It returns once the
// engine has transitioned to ShuttingDown and torn down the device.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started", "max_tokens", e.cfg.MaxTokens)
	for {
		if ctx.Err() != nil {
			e.shutdown()
			return nil
		}

		if e.state.Status == StatusShuttingDown {
			return nil
		}

		if cmd, ok := e.commands.TryPop(); ok {
			if e.handleTopLevelCommand(cmd) {
				e.shutdown()
				return nil
			}
			continue
		}

		task, ok := e.tasks.TryPop()
		if !ok {
			select {
			case <-ctx.Done():
				e.shutdown()
				return nil
			case <-time.After(e.cfg.IdlePollInterval):
			}
			continue
		}

		e.state.CurrentTaskID = task.ID
		e.state.HasCurrentTask = true
		e.state.Status = StatusGenerating

		shuttingDown := e.generate(ctx, task)

		e.state.Status = StatusIdle
		e.state.CurrentTaskID = 0
		e.state.HasCurrentTask = false
		e.state.CancelFlag = false
		e.state.ResetPending = false

		if shuttingDown {
			e.state.Status = StatusShuttingDown
			e.shutdown()
			return nil
		}
	}
}

// handleTopLevelCommand processes a command observed while Idle.
// It returns true if the engine should transition to ShuttingDown.
func (e *Engine) handleTopLevelCommand(cmd Command) bool {
	switch cmd.Kind {
	case CmdShutdown:
		e.logger.Info("shutdown command observed at idle")
		return true
	case CmdReset:
		if err := e.driver.Reset(); err != nil {
			e.logger.Warn("reset failed", "error", err)
			return false
		}
		e.metrics.RecordReset()
		fmt.Fprint(e.out, NoticeMemoryCleared)
	case CmdStop:
		// no-op: nothing is generating
	}
	return false
}

// generate runs one task's generation loop. It returns true if a
// Shutdown command was observed and the engine must terminate.
func (e *Engine) generate(ctx context.Context, task Task) bool {
	start := time.Now()
	fmt.Fprint(e.out, NoticeGenerating)

	tokens := e.tokenizer.Encode(task.Prompt)
	if err := e.driver.StartInference(task.ID, tokens); err != nil {
		e.logger.Warn("start_inference failed", "task_id", task.ID, "error", err)
		fmt.Fprint(e.out, NoticeAborted)
		e.metrics.RecordGeneration(time.Since(start))
		return false
	}

	var tokensThisGen uint32
	lastTokenAt := time.Now()
	for {
		if cmd, ok := e.commands.TryPop(); ok {
			switch cmd.Kind {
			case CmdShutdown:
				e.state.CancelFlag = true
				e.endGeneration(true, false, start)
				return true
			case CmdReset:
				e.state.CancelFlag = true
				e.state.ResetPending = true
			case CmdStop:
				e.state.CancelFlag = true
			}
		}

		if e.state.CancelFlag {
			return e.endGeneration(false, e.state.ResetPending, start)
		}

		token, ok, err := e.driver.NextToken()
		if err != nil {
			e.logger.Warn("next_token failed", "task_id", task.ID, "error", err)
			fmt.Fprint(e.out, NoticeAborted)
			e.metrics.RecordGeneration(time.Since(start))
			return false
		}

		if ok {
			if token == constants.EOSToken {
				fmt.Fprint(e.out, NoticeEOS)
				e.metrics.RecordGeneration(time.Since(start))
				return false
			}
			if s, decodable := e.tokenizer.Decode(token); decodable {
				fmt.Fprint(e.out, s)
			}
			e.metrics.RecordToken(time.Since(lastTokenAt))
			lastTokenAt = time.Now()
			tokensThisGen++
			if tokensThisGen >= e.cfg.MaxTokens {
				fmt.Fprint(e.out, NoticeMaxTokens)
				e.metrics.RecordGeneration(time.Since(start))
				return false
			}
		}

		e.wait(ctx)
	}
}

// endGeneration emits the abort notice (and, if requested, performs and
// announces a reset) then reports whether the caller must terminate.
func (e *Engine) endGeneration(forceShutdown bool, resetPending bool, start time.Time) bool {
	fmt.Fprint(e.out, NoticeAborted)
	e.metrics.RecordAbort()
	e.metrics.RecordGeneration(time.Since(start))

	if resetPending {
		if err := e.driver.Reset(); err != nil {
			e.logger.Warn("reset failed", "error", err)
		} else {
			e.metrics.RecordReset()
			fmt.Fprint(e.out, NoticeMemoryCleared)
		}
	}
	return forceShutdown
}

// wait paces the polling loop: on the wake channel if present, else a
// fixed sleep.
func (e *Engine) wait(ctx context.Context) {
	if e.wake != nil {
		select {
		case <-e.wake:
		case <-time.After(e.cfg.TokenPollInterval):
		case <-ctx.Done():
		}
		return
	}
	select {
	case <-time.After(e.cfg.TokenPollInterval):
	case <-ctx.Done():
	}
}

// shutdown tears down the device on the way out of Run.
func (e *Engine) shutdown() {
	e.state.Status = StatusShuttingDown
	if err := e.driver.Reset(); err != nil {
		e.logger.Warn("shutdown reset failed", "error", err)
	}
	e.logger.Info("engine stopped")
}

// NewShutdownCommand and friends are convenience constructors for the
// shell, kept here so callers never construct a zero-value Command with
// an implicit CmdStop kind by accident.
func NewStopCommand() Command     { return Command{Kind: CmdStop} }
func NewResetCommand() Command    { return Command{Kind: CmdReset} }
func NewShutdownCommand() Command { return Command{Kind: CmdShutdown} }
