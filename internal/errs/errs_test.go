package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageFormatting(t *testing.T) {
	e := New("driver.configure", CodeDeviceUnavailable, "mmap failed")
	assert.Equal(t, "driver.configure: mmap failed", e.Error())

	e = WithTask(New("engine.generate", CodeQueueFull, "full"), 7)
	assert.Equal(t, "engine.generate: full (task_id=7)", e.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap("driver.open", CodeDeviceUnavailable, cause)
	assert.ErrorIs(t, e, cause)
	assert.Nil(t, Wrap("noop", CodeDeviceUnavailable, nil))
}

func TestIsCode(t *testing.T) {
	err := New("shell.enqueue", CodeQueueFull, "dropped")
	assert.True(t, IsCode(err, CodeQueueFull))
	assert.False(t, IsCode(err, CodeInvalidCommand))
	assert.False(t, IsCode(errors.New("plain"), CodeQueueFull))
}
