// Package cli implements the thrushdeps command line.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"

	"golang.org/x/term"
)

// Version is reported by --version and in the User-Agent header. The main
// package overrides it at link time.
var Version = "dev"

// env is the process state a run reads. Tests substitute their own.
type env struct {
	getenv   func(string) string
	getwd    func() (string, error)
	stdin    io.Reader
	terminal bool
}

func osEnv() env {
	return env{
		getenv:   os.Getenv,
		getwd:    os.Getwd,
		stdin:    os.Stdin,
		terminal: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// Run executes thrushdeps with args (without the program name) and returns
// the process exit status. Interrupts cancel the run.
func Run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return run(ctx, args, stdout, stderr, osEnv())
}

// isColorWriter reports whether w is a terminal that should get colors.
func isColorWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
