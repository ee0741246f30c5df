// Package fsutil contains utilities for working with the file system.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
// Both "~/..." (current user) and "~name/..." are accepted.
//
// It returns an error if dir has an unknown user (e.g: "~unknown/...").
func ReplaceTildeInDir(dir string) (string, error) {
	if !strings.HasPrefix(dir, "~") {
		return dir, nil
	}
	userName, rest, _ := strings.Cut(dir[1:], "/")
	var homeDir string
	if userName == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil {
			return "", errors.Wrapf(err, "failed to find home directory for path %q", dir)
		}
	} else {
		usr, err := user.Lookup(userName)
		if err != nil {
			return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
		}
		homeDir = usr.HomeDir
	}
	return filepath.Join(homeDir, rest), nil
}

// AtomicWriteFile writes content to path by writing to a temporary file in the same directory
// and then renaming it over the destination. Readers never see a partially written file, and the
// temporary file is removed on every failure path.
func AtomicWriteFile(path string, content []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %q", path)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return errors.Wrapf(err, "failed to write %q", tmpName)
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %q", tmpName)
	}
	if err = tmp.Chmod(perm); err != nil {
		return errors.Wrapf(err, "failed to set permissions of %q", tmpName)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %q", tmpName)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to rename %q to %q", tmpName, path)
	}
	return nil
}
