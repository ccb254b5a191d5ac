// File: cmd/scalpel-heal/main_test.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-heal/cmd"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	execute = cmd.Execute
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(fmt.Errorf("resolve: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("no element matches")))
}

func TestMain_ExitStatus(t *testing.T) {
	defer resetMocks()

	var code = -1
	osExit = func(c int) { code = c }
	execute = func(ctx context.Context) error {
		require.NotNil(t, ctx)
		return errors.New("boom")
	}

	main()
	assert.Equal(t, 1, code)
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("Writes panic log", func(t *testing.T) {
		var (
			path    string
			written []byte
			code    = -1
		)
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			path, written = name, data
			return nil
		}
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("selector table corrupted")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(written), "panic: selector table corrupted")
		assert.Contains(t, string(written), "goroutine", "stack trace is included")
		assert.Equal(t, 2, code)
	})

	t.Run("Write failure", func(t *testing.T) {
		code := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only filesystem") }
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, code)
	})

	t.Run("No panic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}
