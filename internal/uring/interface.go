// Package uring provides the descriptor-wait abstraction the interrupt
// service uses to block on the UIO interrupt file: a small Ring
// interface with an io_uring backend selected at construction time and a
// portable poll+read fallback. UIO interrupts arrive as a plain readable
// 4-byte count, so the one operation a Ring offers is the one the
// interrupt service actually needs: wait on a descriptor with a bounded
// timeout, then read it.
package uring

import "time"

// Ring abstracts "submit a wait against a descriptor, then read it" so
// the interrupt service doesn't call blocking syscalls directly.
type Ring interface {
	// Read blocks for at most timeout waiting for the ring's descriptor
	// to become readable, then reads into buf. ok is false on timeout,
	// in which case no data was read and the caller should re-poll.
	Read(buf []byte, timeout time.Duration) (n int, ok bool, err error)

	// Close releases any resources the ring holds. It does not close the
	// underlying descriptor, which the caller owns.
	Close() error
}

// Config describes the descriptor a Ring waits on.
type Config struct {
	// FD is the file descriptor to wait on and read from.
	FD int32
}

// NewRing constructs the best available Ring for config: the
// io_uring-backed ring when built with -tags giouring, else the portable
// poll+read fallback.
func NewRing(config Config) (Ring, error) {
	if ring, err := NewRealRing(config); err == nil {
		return ring, nil
	}
	return newMinimalRing(config.FD)
}
