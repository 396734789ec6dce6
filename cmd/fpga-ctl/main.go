// Command fpga-ctl is the host-side control plane for the FPGA inference
// accelerator: it reserves the shared DDR regions, stages model weights,
// maps the register window (or substitutes a simulation backend), and
// runs the console shell and generation engine until shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/accelhost/fpga-ctl/internal/constants"
	"github.com/accelhost/fpga-ctl/internal/driver"
	"github.com/accelhost/fpga-ctl/internal/engine"
	"github.com/accelhost/fpga-ctl/internal/irq"
	"github.com/accelhost/fpga-ctl/internal/logging"
	"github.com/accelhost/fpga-ctl/internal/memmgr"
	"github.com/accelhost/fpga-ctl/internal/metrics"
	"github.com/accelhost/fpga-ctl/internal/queue"
	"github.com/accelhost/fpga-ctl/internal/shell"
	"github.com/accelhost/fpga-ctl/internal/tokenizer"
)

func main() {
	var (
		devPath   = flag.String("device", "", "Register-window device to mmap (empty = simulation mode)")
		uioPath   = flag.String("uio", "", "UIO interrupt device (e.g. /dev/uio0; empty = polling only)")
		modelPath = flag.String("model", "model.pt.bin", "Quantized weight container to stage into DDR")
		maxTokens  = flag.Uint("max-tokens", constants.DefaultMaxTokens, "Per-generation token budget")
		stride     = flag.Uint("stride", 128, "Accelerator read stride in bytes")
		weightsStr = flag.String("weights-size", "1G", "Size of the weights DDR region (e.g., 512M, 1G)")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	weightsSize, err := parseSize(*weightsStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fpga-ctl: invalid weights-size %q: %v\n", *weightsStr, err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if err := run(*devPath, *uioPath, *modelPath, uint32(*maxTokens), uint32(*stride), uint64(weightsSize), logger); err != nil {
		logger.Error("startup failed", "error", err)
		fmt.Fprintf(os.Stderr, "fpga-ctl: %v\n", err)
		os.Exit(1)
	}
}

// run wires the components in dependency order and blocks until the
// engine observes a Shutdown. Every error it returns is an
// initialization failure (exit status 1); runtime errors are handled
// inside the engine.
func run(devPath, uioPath, modelPath string, maxTokens, stride uint32, weightsSize uint64, logger *logging.Logger) error {
	mgr, err := reserveMemory(logger, weightsSize)
	if err != nil {
		return fmt.Errorf("memory init: %w", err)
	}
	defer mgr.Release()

	backend, err := newBackend(devPath, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	weightsRegion, _ := mgr.Region(memmgr.Weights)
	kvRegion, _ := mgr.Region(memmgr.KVCache)
	inputRegion, _ := mgr.Region(memmgr.InputBuffer)
	outputRegion, _ := mgr.Region(memmgr.OutputBuffer)

	// A weight-load failure is not fatal: the engine proceeds in
	// simulation mode without weights, and the user is told why.
	if err := loadWeights(modelPath, weightsRegion, logger); err != nil {
		logger.Warn("weight load failed, continuing without weights", "model", modelPath, "error", err)
		fmt.Printf("Warning: could not load %s (%v); continuing in simulation mode without weights\n", modelPath, err)
	}

	drv := driver.New(backend, inputRegion, kvRegion, logger)
	if err := drv.Configure(inputRegion.PhysAddr(), outputRegion.PhysAddr(), kvRegion.PhysAddr(), stride, maxTokens); err != nil {
		return fmt.Errorf("device configure: %w", err)
	}

	tasks := queue.New[engine.Task](constants.TaskQueueCapacity)
	commands := queue.New[engine.Command](constants.CommandQueueCapacity)
	m := metrics.New()

	eng := engine.New(drv, tokenizer.NewByteTokenizer(), tasks, commands, os.Stdout, logger, m, engine.Config{MaxTokens: maxTokens})

	var svc *irq.Service
	if uioPath != "" {
		svc, err = irq.Open(uioPath, backend, logger)
		if err != nil {
			return fmt.Errorf("interrupt service: %w", err)
		}

		wake := make(chan struct{}, 1)
		notify := func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
		svc.OnDone(notify)
		svc.OnTokenReady(notify)
		svc.OnError(func() {
			notify()
			logger.Error("device reported hardware error interrupt")
		})
		eng.WithWake(wake)

		if err := svc.Start(); err != nil {
			return fmt.Errorf("interrupt service: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil {
			logger.Error("engine exited with error", "error", err)
		}
	}()

	sh := shell.New(os.Stdin, os.Stdout, tasks, commands, logger, m)
	if err := sh.Run(); err != nil {
		logger.Warn("console read error", "error", err)
	}

	// Shutdown discipline: the shell has enqueued Shutdown (explicitly or
	// on input close); wait for the engine to observe it, then stop the
	// interrupt service before the deferred memory release.
	wg.Wait()

	if svc != nil {
		if err := svc.Stop(); err != nil {
			logger.Warn("interrupt service stop failed", "error", err)
		}
	}

	snap := m.Snapshot()
	logger.Info("shutdown complete",
		"generations", snap.GenerationCount,
		"tokens", snap.TokensGenerated,
		"aborts", snap.AbortCount,
		"uptime", snap.Uptime)
	return nil
}
