// Package shell implements the console surface: it reads lines from an
// input stream, classifies them as a
// control command or a generation prompt, and enqueues them for the
// engine to consume. It is the sole producer of both queues.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/accelhost/fpga-ctl/internal/engine"
	"github.com/accelhost/fpga-ctl/internal/logging"
	"github.com/accelhost/fpga-ctl/internal/metrics"
	"github.com/accelhost/fpga-ctl/internal/queue"
)

// Shell reads lines from in, classifies them, and pushes onto the task
// and command queues. It owns the monotonic task id counter.
type Shell struct {
	in       *bufio.Scanner
	out      io.Writer
	tasks    *queue.Ring[engine.Task]
	commands *queue.Ring[engine.Command]
	logger   *logging.Logger
	metrics  *metrics.Metrics

	nextTaskID atomic.Uint32
}

// New constructs a Shell reading from in and writing rejection notices
// to out. A nil logger defaults to logging.Default(); a nil
// metrics.Metrics is allocated fresh.
func New(in io.Reader, out io.Writer, tasks *queue.Ring[engine.Task], commands *queue.Ring[engine.Command], logger *logging.Logger, m *metrics.Metrics) *Shell {
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Shell{
		in:       bufio.NewScanner(in),
		out:      out,
		tasks:    tasks,
		commands: commands,
		logger:   logger.WithComponent("shell"),
		metrics:  m,
	}
}

// Run reads lines until in is exhausted or a read error occurs, then
// enqueues an implicit Shutdown so the engine always terminates when
// the console closes. It returns any scan error encountered.
func (s *Shell) Run() error {
	for s.in.Scan() {
		s.dispatch(s.in.Text())
	}

	s.logger.Info("input closed, enqueueing shutdown")
	s.commands.TryPush(engine.NewShutdownCommand())
	return s.in.Err()
}

// dispatch classifies one line and enqueues the resulting command or
// task.
func (s *Shell) dispatch(line string) {
	trimmed := strings.TrimSpace(line)

	switch trimmed {
	case "/quit":
		s.commands.TryPush(engine.NewShutdownCommand())
		return
	case "/stop":
		s.commands.TryPush(engine.NewStopCommand())
		return
	case "/reset":
		s.commands.TryPush(engine.NewResetCommand())
		return
	}

	if trimmed == "" {
		return
	}

	task := engine.Task{ID: s.nextTaskID.Add(1), Prompt: line}
	if !s.tasks.TryPush(task) {
		s.metrics.RecordQueueFull()
		s.logger.Warn("task queue full, dropping request", "task_id", task.ID)
		fmt.Fprint(s.out, engine.NoticeTaskQueueFull)
	}
}
