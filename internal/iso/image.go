package iso

import (
	"errors"
	"io/fs"
	"os"
	"sync"
)

// Image is an assembled boot disk in a temporary file. The file exists until
// Close is called.
type Image struct {
	// Name is the suggested file name for downloads.
	Name string

	path string
	size int64

	closeOnce sync.Once
	closeErr  error
}

func (i *Image) Path() string {
	return i.path
}

func (i *Image) Size() int64 {
	return i.size
}

// Open returns a new read-only handle to the image.
func (i *Image) Open() (*os.File, error) {
	return os.Open(i.path)
}

// Close removes the image file. It is safe to call more than once.
func (i *Image) Close() error {
	i.closeOnce.Do(func() {
		err := os.Remove(i.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			i.closeErr = err
		}
	})
	return i.closeErr
}
