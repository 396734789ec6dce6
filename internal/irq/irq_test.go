package irq

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/accelhost/fpga-ctl/internal/driver"
	"github.com/accelhost/fpga-ctl/internal/regmap"
)

// newTestService wires a Service to one end of a unix socketpair, so the
// test can both push simulated "interrupt" bytes and observe the
// service's re-arm writes, the way a real UIO character device would
// deliver both in one descriptor.
func newTestService(t *testing.T, backend driver.Backend) (*Service, *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)

	svcEnd := os.NewFile(uintptr(fds[0]), "uio-test")
	testEnd := os.NewFile(uintptr(fds[1]), "uio-test-peer")

	svc, err := newService(svcEnd, backend, nil)
	require.NoError(t, err)

	t.Cleanup(func() { testEnd.Close() })
	return svc, testEnd
}

func TestServiceDispatchesAndClearsISR(t *testing.T) {
	backend := driver.NewSimulationBackend()
	svc, peer := newTestService(t, backend)

	var doneCalls, readyCalls int
	svc.OnDone(func() { doneCalls++ })
	svc.OnReady(func() { readyCalls++ })

	require.NoError(t, backend.Write32(regmap.OffsetISR, regmap.IRQDone))

	require.NoError(t, svc.Start())
	defer svc.Stop()

	_, err := peer.Write([]byte{1, 0, 0, 0})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return svc.Stats.Done.Load() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, readyCalls)

	isr, err := backend.Read32(regmap.OffsetISR)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), isr, "asserted bits must be cleared after dispatch")

	// the service re-arms the descriptor after each dispatch
	rearmBuf := make([]byte, 4)
	peer.SetReadDeadline(time.Now().Add(time.Second))
	n, err := peer.Read(rearmBuf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.GreaterOrEqual(t, doneCalls, 1)
}

func TestStopIsIdempotentWithoutStart(t *testing.T) {
	backend := driver.NewSimulationBackend()
	svc, _ := newTestService(t, backend)
	assert.NoError(t, svc.Stop())
	assert.NoError(t, svc.Stop())
}

func TestStopClearsIERAndGIE(t *testing.T) {
	backend := driver.NewSimulationBackend()
	svc, _ := newTestService(t, backend)

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Stop())

	ier, err := backend.Read32(regmap.OffsetIER)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ier)

	gie, err := backend.Read32(regmap.OffsetGIE)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), gie)
}
