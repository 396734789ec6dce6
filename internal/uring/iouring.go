//go:build giouring
// +build giouring

package uring

import (
	"fmt"
	"syscall"
	"time"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

// iouRing implements Ring over a real io_uring: the interrupt wait is a
// read SQE against the UIO descriptor, completed by the kernel when an
// interrupt fires. Compared to minimalRing's poll+read this keeps the
// wait path on a single submission/completion ring, the same discipline
// a queue runner uses for device fetch/commit cycles.
type iouRing struct {
	ring *giouring.Ring
	fd   int32
}

// NewRealRing creates an io_uring-backed Ring for fd.
func NewRealRing(config Config) (Ring, error) {
	ring, err := giouring.CreateRing(8)
	if err != nil {
		return nil, fmt.Errorf("uring: create ring: %w", err)
	}
	return &iouRing{ring: ring, fd: config.FD}, nil
}

// Read submits a read SQE for the descriptor and waits up to timeout for
// its CQE.
func (r *iouRing) Read(buf []byte, timeout time.Duration) (int, bool, error) {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return 0, false, fmt.Errorf("uring: submission queue full")
	}
	sqe.PrepareRead(int(r.fd), buf, 0)
	sqe.UserData = 1

	if _, err := r.ring.Submit(); err != nil {
		return 0, false, fmt.Errorf("uring: submit: %w", err)
	}

	ts := syscall.NsecToTimespec(timeout.Nanoseconds())
	cqe, err := r.ring.WaitCQETimeout(&ts)
	if err != nil {
		if err == unix.ETIME || err == unix.EAGAIN || err == unix.EINTR {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("uring: wait cqe: %w", err)
	}
	res := cqe.Res
	r.ring.CQESeen(cqe)

	if res < 0 {
		return 0, false, fmt.Errorf("uring: read: %w", unix.Errno(-res))
	}
	return int(res), true, nil
}

// Close tears down the ring. The descriptor itself stays with the caller.
func (r *iouRing) Close() error {
	r.ring.QueueExit()
	return nil
}
