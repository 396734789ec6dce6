// Package irq implements the optional interrupt-servicing thread: it
// blocks on a UIO descriptor, reads the ISR register on
// wakeup, dispatches registered callbacks for each asserted bit, and
// write-1-to-clears those bits. Callbacks must not block; they exist only
// to wake the engine or flip a flag.
package irq

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/accelhost/fpga-ctl/internal/constants"
	"github.com/accelhost/fpga-ctl/internal/driver"
	"github.com/accelhost/fpga-ctl/internal/errs"
	"github.com/accelhost/fpga-ctl/internal/logging"
	"github.com/accelhost/fpga-ctl/internal/regmap"
	"github.com/accelhost/fpga-ctl/internal/uring"
)

// Callback is invoked synchronously on the interrupt-service goroutine
// for each asserted bit. Callbacks must not block or perform long work;
// they should signal the engine via atomics or channels.
type Callback func()

// Stats holds atomic interrupt counters, safe to read concurrently with
// the service loop.
type Stats struct {
	Total      atomic.Uint64
	Done       atomic.Uint64
	Ready      atomic.Uint64
	TokenReady atomic.Uint64
	Error      atomic.Uint64
}

// Service is the optional interrupt-servicing thread.
type Service struct {
	backend driver.Backend
	ring    uring.Ring
	fd      *os.File
	logger  *logging.Logger

	mu        sync.Mutex
	callbacks map[uint32][]Callback

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	Stats Stats
}

// Open opens the UIO descriptor at uioPath and constructs a Service bound
// to it and to backend, the same register window the accelerator driver
// owns. The ISR thread only ever touches GIE/IER/ISR, which occupy their
// own offsets, so this sharing never races with the driver's
// configure/start/poll accesses.
func Open(uioPath string, backend driver.Backend, logger *logging.Logger) (*Service, error) {
	f, err := os.OpenFile(uioPath, os.O_RDWR, 0)
	if err != nil {
		return nil, errs.Wrap("irq.open", errs.CodeDeviceUnavailable, fmt.Errorf("open %s: %w", uioPath, err))
	}

	svc, err := newService(f, backend, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	return svc, nil
}

// newService builds a Service around an already-open descriptor, letting
// tests substitute a pipe for a real UIO device.
func newService(f *os.File, backend driver.Backend, logger *logging.Logger) (*Service, error) {
	ring, err := uring.NewRing(uring.Config{FD: int32(f.Fd())})
	if err != nil {
		return nil, errs.Wrap("irq.open", errs.CodeDeviceUnavailable, err)
	}

	if logger == nil {
		logger = logging.Default()
	}

	return &Service{
		backend:   backend,
		ring:      ring,
		fd:        f,
		logger:    logger.WithComponent("irq"),
		callbacks: make(map[uint32][]Callback),
	}, nil
}

// On registers cb to run when bit is asserted in ISR.
func (s *Service) On(bit uint32, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[bit] = append(s.callbacks[bit], cb)
}

// OnDone registers a callback for the DONE interrupt.
func (s *Service) OnDone(cb Callback) { s.On(regmap.IRQDone, cb) }

// OnReady registers a callback for the READY interrupt.
func (s *Service) OnReady(cb Callback) { s.On(regmap.IRQReady, cb) }

// OnTokenReady registers a callback for the TOKEN_READY interrupt.
func (s *Service) OnTokenReady(cb Callback) { s.On(regmap.IRQTokenReady, cb) }

// OnError registers a callback for the ERROR interrupt.
func (s *Service) OnError(cb Callback) { s.On(regmap.IRQError, cb) }

// Start arms the device (GIE=1, IER=DONE|READY) and spawns the service
// goroutine.
func (s *Service) Start() error {
	if err := s.backend.Write32(regmap.OffsetIER, regmap.IRQDone|regmap.IRQReady); err != nil {
		return errs.Wrap("irq.start", errs.CodeDeviceUnavailable, err)
	}
	if err := s.backend.Write32(regmap.OffsetGIE, 1); err != nil {
		return errs.Wrap("irq.start", errs.CodeDeviceUnavailable, err)
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running.Store(true)
	go s.loop()
	s.logger.Info("interrupt service started")
	return nil
}

// Stop clears running, joins the service goroutine, clears IER/GIE, and
// closes the descriptor. It is safe to call on a Service that was never
// started.
func (s *Service) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh

	if err := s.backend.Write32(regmap.OffsetIER, 0); err != nil {
		s.logger.Warn("clear ier failed", "error", err)
	}
	if err := s.backend.Write32(regmap.OffsetGIE, 0); err != nil {
		s.logger.Warn("clear gie failed", "error", err)
	}
	if err := s.ring.Close(); err != nil {
		s.logger.Warn("ring close failed", "error", err)
	}
	s.logger.Info("interrupt service stopped")
	return s.fd.Close()
}

func (s *Service) loop() {
	defer close(s.doneCh)
	buf := make([]byte, 4)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		n, ok, err := s.ring.Read(buf, constants.IRQPollTimeout)
		if err != nil {
			s.logger.Warn("uio read failed", "error", err)
			continue
		}
		if !ok || n < 4 {
			continue
		}

		s.Stats.Total.Add(1)
		s.dispatch()

		if err := s.rearm(); err != nil {
			s.logger.Warn("uio rearm failed", "error", err)
		}
	}
}

// dispatch reads ISR, invokes callbacks for each asserted bit, and
// write-1-to-clears those same bits.
func (s *Service) dispatch() {
	isr, err := s.backend.Read32(regmap.OffsetISR)
	if err != nil {
		s.logger.Warn("isr read failed", "error", err)
		return
	}
	if isr == 0 {
		return
	}

	s.mu.Lock()
	snapshot := make(map[uint32][]Callback, len(s.callbacks))
	for bit, cbs := range s.callbacks {
		snapshot[bit] = cbs
	}
	s.mu.Unlock()

	for _, bit := range []uint32{regmap.IRQDone, regmap.IRQReady, regmap.IRQTokenReady, regmap.IRQError} {
		if isr&bit == 0 {
			continue
		}
		switch bit {
		case regmap.IRQDone:
			s.Stats.Done.Add(1)
		case regmap.IRQReady:
			s.Stats.Ready.Add(1)
		case regmap.IRQTokenReady:
			s.Stats.TokenReady.Add(1)
		case regmap.IRQError:
			s.Stats.Error.Add(1)
		}
		for _, cb := range snapshot[bit] {
			cb()
		}
	}

	if err := s.backend.Write32(regmap.OffsetISR, isr); err != nil {
		s.logger.Warn("isr clear failed", "error", err)
	}
}

// rearm writes a little-endian 4-byte 1 to the UIO descriptor, re-arming
// it for the next interrupt.
func (s *Service) rearm() error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], 1)
	_, err := s.fd.Write(buf[:])
	return err
}
