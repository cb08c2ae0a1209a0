package fsutil

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteFileAtomic writes data to path by way of a uniquely-named temporary
// file in the same directory followed by a rename, so that readers never
// observe a partially written file. This is the building block that the
// directory and ZIP archive backends both use for their commit step: every
// member or container write lands on disk in one atomic step or not at all.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode) error {
	dirname, basename := filepath.Split(path)
	if dirname == "" {
		dirname = "."
	}
	temporary, err := ioutil.TempFile(dirname, TemporaryNamePrefix+basename+".")
	if err != nil {
		return errors.Wrap(err, "unable to create temporary file")
	}

	if _, err = temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to write data to temporary file")
	}

	if err = temporary.Close(); err != nil {
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to close temporary file")
	}

	if err = os.Chmod(temporary.Name(), permissions); err != nil {
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to change file permissions")
	}

	if err = RenameReplace(temporary.Name(), path); err != nil {
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to rename file into place")
	}

	return nil
}

// RenameReplace renames oldpath to newpath, falling back to a copy-and-remove
// sequence if the rename fails because the two paths reside on different
// devices (which a straight os.Rename cannot cross). Needed archives and
// garbage archives are often configured to live on a different volume than
// the romset itself.
func RenameReplace(oldpath, newpath string) error {
	err := os.Rename(oldpath, newpath)
	if err == nil {
		return nil
	}
	if !isCrossDeviceError(err) {
		return err
	}

	source, openErr := os.Open(oldpath)
	if openErr != nil {
		return err
	}
	defer source.Close()

	info, statErr := source.Stat()
	if statErr != nil {
		return err
	}

	destination, createErr := os.OpenFile(newpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if createErr != nil {
		return err
	}
	if _, copyErr := io.Copy(destination, source); copyErr != nil {
		destination.Close()
		os.Remove(newpath)
		return copyErr
	}
	if closeErr := destination.Close(); closeErr != nil {
		os.Remove(newpath)
		return closeErr
	}

	return os.Remove(oldpath)
}
