// File: cmd/relist-cli/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/xkilldash9x/relist-cli/cmd"
	"github.com/xkilldash9x/relist-cli/internal/observability"
)

const panicLogFile = "panic.log"

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	stderr      = os.Stderr
)

func main() {
	// The sentinel: nothing escapes without leaving a panic.log behind.
	defer handlePanic()

	loadDotEnv(".env")

	// SIGINT/SIGTERM cancel the run; the orchestrator still captures
	// diagnostics and persists the summary before returning.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			osExit(0)
			return
		}
		osExit(1)
	}
}

// loadDotEnv loads environment overrides from a dotenv file if one exists.
// Variables already set in the environment win.
func loadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "warning: failed to load %v: %v\n", paths, err)
	}
}

// handlePanic records an unrecovered panic to panicLogFile and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(stderr, "Panic details:\n%s\n", panicMessage)
		osExit(1)
		return
	}
	fmt.Fprintf(stderr, "relist-cli crashed. Details logged to %s\n", panicLogFile)
	osExit(1)
}
