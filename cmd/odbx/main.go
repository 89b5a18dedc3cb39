// Package main provides odbx, an inspector for the pack indices of an
// object database.
//
// The first SIGINT or SIGTERM cancels the running command; a second one
// exits immediately with status 130.
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/calvinalkan/odb/internal/cli"
)

func main() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	os.Exit(cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, environ(), cancelOnce(sigCh)))
}

// cancelOnce forwards the first signal to the command and exits on the
// second, for commands stuck in a blocking read.
func cancelOnce(sigCh <-chan os.Signal) <-chan os.Signal {
	first := make(chan os.Signal, 1)

	go func() {
		first <- <-sigCh

		<-sigCh
		os.Exit(130)
	}()

	return first
}

func environ() map[string]string {
	env := make(map[string]string)

	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	return env
}
