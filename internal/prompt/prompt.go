// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrEmptySecret is returned when no secret was entered.
var ErrEmptySecret = errors.New("no secret entered")

// Prompts are written to standard error so that standard output only carries
// what a command prints.
var promptOut io.Writer = os.Stderr

// Secret prompts for a secret, such as a spending key, with the given prefix.
// Input is not echoed when standard input is a terminal. Otherwise the first
// line of reader is used, so secrets can be piped in.
func Secret(reader *bufio.Reader, prefix string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readSecretLine(reader)
	}

	for {
		fmt.Fprintf(promptOut, "%s: ", prefix)
		secret, err := term.ReadPassword(fd)
		if err != nil {
			return nil, err
		}
		fmt.Fprint(promptOut, "\n")
		secret = bytes.TrimSpace(secret)
		if len(secret) == 0 {
			continue
		}
		return secret, nil
	}
}

// readSecretLine reads a single non-empty line.
func readSecretLine(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptySecret
		}
		return nil, err
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrEmptySecret
	}
	return line, nil
}

// promptList prompts the user with the given prefix, list of valid responses,
// and default list entry to use.  The function will repeat the prompt to the
// user until they enter a valid response.
func promptList(reader *bufio.Reader, prefix string, validResponses []string,
	defaultEntry string) (string, error) {

	// Setup the prompt according to the parameters.
	validStrings := strings.Join(validResponses, "/")
	var prompt string
	if defaultEntry != "" {
		prompt = fmt.Sprintf("%s (%s) [%s]: ", prefix, validStrings,
			defaultEntry)
	} else {
		prompt = fmt.Sprintf("%s (%s): ", prefix, validStrings)
	}

	// Prompt the user until one of the valid responses is given.
	for {
		fmt.Fprint(promptOut, prompt)
		reply, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && reply != "") {
			return "", err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}

		for _, validResponse := range validResponses {
			if reply == validResponse {
				return reply, nil
			}
		}
	}
}

// Confirm prompts the user for a boolean (yes/no) with the given prefix. The
// function will repeat the prompt to the user until they enter a valid
// reponse.
func Confirm(reader *bufio.Reader, prefix string,
	defaultEntry string) (bool, error) {

	// Setup the valid responses.
	valid := []string{"n", "no", "y", "yes"}
	response, err := promptList(reader, prefix, valid, defaultEntry)
	if err != nil {
		return false, err
	}
	return response == "yes" || response == "y", nil
}
