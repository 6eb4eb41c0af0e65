// Command river runs a command line under time and memory limits and
// prints how it terminated and what it used.
//
//	river run --time-limit 1000 --memory-limit 65536 -- ./a.out
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/criyle/river"
)

const (
	exitOK         = 0
	exitSetupError = 1
	exitUsageError = 2
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	var se *river.SetupError
	if errors.As(err, &se) {
		return exitSetupError
	}
	return exitUsageError
}
