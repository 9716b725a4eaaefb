package finalize

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakePanicHandlerRecoversIntoError(t *testing.T) {
	var logged []string
	handler := MakePanicHandler(func(funcName string, err any, stack []byte, fields ...map[string]any) {
		logged = append(logged, funcName)
		assert.NotEmpty(t, stack)
		require.Len(t, fields, 1)
		assert.Equal(t, "tags", fields[0]["step"])
	})

	run := func() (err error) {
		defer handler("step.tags", &err, map[string]any{"step": "tags"})
		panic("boom")
	}

	err := run()
	require.Error(t, err)
	assert.Equal(t, ErrCodeStepPanic, ErrorCode(err))
	assert.Equal(t, []string{"step.tags"}, logged)
}

func TestMakePanicHandlerKeepsPanicError(t *testing.T) {
	cause := errors.New("nil map write")
	handler := MakePanicHandler(nil)

	run := func() (err error) {
		defer handler("step", &err)
		panic(cause)
	}

	err := run()
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeStepPanic))
	assert.ErrorIs(t, err, cause)
}

func TestMakePanicHandlerNoPanic(t *testing.T) {
	handler := MakePanicHandler(nil)
	run := func() (err error) {
		defer handler("step", &err)
		return nil
	}
	assert.NoError(t, run())
}

func TestLoggerPanicHandlerWritesStack(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := MakePanicHandler(LoggerPanicHandler(NewFmtLogger(buf)))

	run := func() (err error) {
		defer handler("analytics", &err, map[string]any{"execution_id": "exec-1"})
		panic("exploded")
	}
	_ = run()

	out := buf.String()
	assert.Contains(t, out, "recovered from panic in analytics: exploded")
	assert.Contains(t, out, "execution_id=exec-1")
}

func TestCleanStackTraceDropsPanicFrames(t *testing.T) {
	stack := []byte("goroutine 1\nmain.f()\npanic({0x0})\n\t/runtime/panic.go:1\nmain.g()\n\t/main.go:10")
	cleaned := string(cleanStackTrace(stack))
	assert.NotContains(t, cleaned, "panic(")
	assert.Contains(t, cleaned, "main.g()")
}
