package uring

import (
	"time"

	"golang.org/x/sys/unix"
)

// minimalRing is the portable default Ring: a poll-then-read loop over
// golang.org/x/sys/unix, used when the io_uring backend is not compiled
// in. UIO interrupts are a plain readable byte stream with no command
// payload to encode into a submission entry, so unix.Poll + unix.Read
// cover everything the wait path needs.
type minimalRing struct {
	fd int32
}

func newMinimalRing(fd int32) (Ring, error) {
	return &minimalRing{fd: fd}, nil
}

// Read waits up to timeout for fd to become readable, then performs a
// single read into buf.
func (r *minimalRing) Read(buf []byte, timeout time.Duration) (int, bool, error) {
	fds := []unix.PollFd{{Fd: r.fd, Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return 0, false, nil
		}
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}

	nr, err := unix.Read(int(r.fd), buf)
	if err != nil {
		return 0, false, err
	}
	return nr, true, nil
}

// Close is a no-op: minimalRing does not own the descriptor.
func (r *minimalRing) Close() error { return nil }
