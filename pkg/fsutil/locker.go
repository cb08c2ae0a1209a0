package fsutil

import (
	"os"

	"github.com/pkg/errors"
)

type Locker struct {
	// The underlying file object to be locked.
	file *os.File
}

// NewLocker opens (creating if necessary) the lock file at path.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE | os.O_APPEND
	if file, err := os.OpenFile(path, mode, permissions); err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	} else {
		return &Locker{file: file}, nil
	}
}

// Close releases the underlying file handle. It does not itself release any
// lock held via Lock; Unlock (or process exit) does that.
func (l *Locker) Close() error {
	return l.file.Close()
}
