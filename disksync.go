// Copyright (c) 2013 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zcoldwallet/zcoldwallet/wallet"
)

const (
	// publicFileMode is the mode of artifacts that carry no secret.
	publicFileMode = 0644

	// secretFileMode is the mode of key shares and nonces.
	secretFileMode = 0600
)

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so a failed command never leaves a partial file behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmpfile, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return err
	}
	tmpfilepath := tmpfile.Name()
	defer os.Remove(tmpfilepath)

	if err := tmpfile.Chmod(perm); err != nil {
		tmpfile.Close()
		return err
	}
	if _, err := tmpfile.Write(data); err != nil {
		tmpfile.Close()
		return err
	}
	if err := tmpfile.Sync(); err != nil {
		tmpfile.Close()
		return err
	}
	if err := tmpfile.Close(); err != nil {
		return err
	}

	// The rename is atomic on POSIX systems only.
	if err := os.Rename(tmpfilepath, path); err != nil {
		return err
	}

	log.Debugf("Wrote %s", path)
	return nil
}

// writeArtifact encodes v as JSON and writes it to path.
func writeArtifact(path string, v any, perm os.FileMode) error {
	data, err := wallet.EncodeArtifact(v)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, perm)
}

// readArtifact decodes the JSON artifact at path into v.
func readArtifact(name, path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", name, err)
	}
	return wallet.ParseArtifact(name, data, v)
}
