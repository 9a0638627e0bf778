// Package snapshot loads script snapshots from storage and assembles new ones.
package snapshot

import (
	stderrors "errors"
	"io"
	"io/fs"

	"go.uber.org/zap"

	"github.com/wippyai/scripthost/errors"
)

// DefaultName is the logical storage path of the script snapshot.
const DefaultName = "script.wasm"

// Image is an immutable snapshot loaded into memory.
// A VM restored from it borrows Bytes until it is collected.
type Image struct {
	name  string
	bytes []byte
}

// NewImage wraps already loaded snapshot bytes.
func NewImage(name string, b []byte) *Image {
	return &Image{name: name, bytes: b}
}

// Name returns the logical name the image was loaded from.
func (i *Image) Name() string { return i.name }

// Bytes returns the image contents, or nil after Release.
func (i *Image) Bytes() []byte { return i.bytes }

// Len returns the image size in bytes.
func (i *Image) Len() int { return len(i.bytes) }

// Release drops the image contents. Call only after the VM that borrowed the
// image has been collected.
func (i *Image) Release() { i.bytes = nil }

// Load reads the named snapshot fully. The buffer is sized from the file
// length; a short read is an error, never a partial image.
func Load(fsys fs.FS, name string) (*Image, error) {
	f, err := fsys.Open(name)
	if err != nil {
		kind := errors.KindInvalidInput
		if stderrors.Is(err, fs.ErrNotExist) {
			kind = errors.KindNotFound
		}
		return nil, errors.Storage(kind, name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Storage(errors.KindInvalidInput, name, err)
	}
	if info.IsDir() {
		return nil, errors.Storage(errors.KindInvalidInput, name, fs.ErrInvalid)
	}

	size := int(info.Size())
	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil {
		if stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, io.EOF) {
			return nil, errors.Truncated(name, size, n)
		}
		return nil, errors.Storage(errors.KindInvalidInput, name, err)
	}

	Logger().Debug("snapshot loaded", zap.String("name", name), zap.Int("size", size))
	return &Image{name: name, bytes: buf}, nil
}
