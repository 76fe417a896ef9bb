// File: cmd/pilot/main.go
/*
Copyright © 2025 Kyle McAllister (xkilldash9x@proton.me)
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/pilot-cli/cmd"
)

const panicLogFile = "panic.log"

// Function variables replaced in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	execute     = cmd.Execute
)

func main() {
	defer handlePanic()

	// SIGINT and SIGTERM cancel the running task between steps.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(execute(ctx)))
}

// exitCode maps the command result to a process status. An interrupted run is a clean exit.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}

// handlePanic records an unrecovered panic with its stack and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
	} else {
		fmt.Fprintf(os.Stderr, "\nCRASH DETECTED. Details logged to %s\n", panicLogFile)
	}
	osExit(2)
}
