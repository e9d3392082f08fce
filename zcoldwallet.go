// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/zcoldwallet/zcoldwallet/wallet"
)

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0
)

// version returns the application version as a properly formed string.
func version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

// errUsage is returned when a command is missing or called with the wrong
// arguments.
var errUsage = errors.New("invalid usage")

func main() {
	// Work around defer not working after os.Exit.
	if err := walletMain(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// walletMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func walletMain(args []string) error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, args, err := loadConfig(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "No command given")
		printCommands(os.Stderr)
		return errUsage
	}
	name, args := args[0], args[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", name)
		printCommands(os.Stderr)
		return errUsage
	}
	if err := cmd.checkArgs(args); err != nil {
		fmt.Fprintf(os.Stderr, "Usage: %s %s\n", name, cmd.usage)
		return err
	}

	ctx, cancel := interruptContext(context.Background())
	defer cancel()

	log.Debugf("Running %s on %s", name, activeNet.Name)
	if err := cmd.handler(ctx, cfg, args); err != nil {
		reportError(os.Stderr, name, err)
		return err
	}
	return nil
}

// reportError writes a failed command's error, naming its kind when the
// wallet classifies it.
func reportError(w io.Writer, name string, err error) {
	if kind, ok := wallet.KindOf(err); ok {
		fmt.Fprintf(w, "%s failed (%v): %v\n", name, kind, err)
		return
	}
	fmt.Fprintf(w, "%s failed: %v\n", name, err)
}

// printCommands writes the list of commands and their arguments.
func printCommands(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Commands:")
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(w, "  %s %s\n", name, cmd.usage)
		fmt.Fprintf(w, "      %s\n", cmd.help)
	}
}
