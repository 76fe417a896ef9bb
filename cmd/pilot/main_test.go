// File: cmd/pilot/main_test.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(context.Canceled))
	assert.Equal(t, 0, exitCode(fmt.Errorf("task run failed: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("WritesPanicLog", func(t *testing.T) {
		var written []byte
		var path string
		exitCode := -1
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			path, written = name, data
			return nil
		}
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("something broke")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(written), "panic: something broke")
		assert.Contains(t, string(written), "goroutine", "stack trace is included")
		assert.Equal(t, 2, exitCode)
	})

	t.Run("WriteFailureStillExits", func(t *testing.T) {
		exitCode := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only") }
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("again")
		}()
		assert.Equal(t, 2, exitCode)
	})

	t.Run("NoPanic", func(t *testing.T) {
		osExit = func(int) { require.Fail(t, "exit must not be called without a panic") }
		func() {
			defer handlePanic()
		}()
	})
}
