// Package extract copies byte ranges out of an ELF image, addressing them
// by virtual address.
package extract

import (
	"io"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/go-delve/kmeta/pkg/elfmeta"
	"github.com/go-delve/kmeta/pkg/logflags"
)

// ErrShortRead is returned when the image ends before size bytes could be
// read.
var ErrShortRead = errors.New("image ends before the requested range")

// Extract copies size bytes starting at virtual address vaddr of the image
// bound to f into a new file at out. If the copy fails out is removed.
func Extract(f *elfmeta.File, vaddr, size uint64, out string) (err error) {
	path, off, err := f.Locate(vaddr)
	if err != nil {
		return err
	}
	logflags.ExtractLogger().Debugf("copying %#x bytes at %#x (file offset %#x) of %s to %s", size, vaddr, off, path, out)

	src, err := openRange(path, vaddr, off, size)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(out)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", out)
	}
	defer func() {
		cerr := dst.Close()
		if err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "could not write %s", out)
		}
		if err != nil {
			os.Remove(out)
		}
	}()

	n, err := io.CopyN(dst, src, int64(size))
	if err == io.EOF {
		return errors.Wrapf(ErrShortRead, "%#x bytes at %#x, only %#x available", size, vaddr, n)
	}
	if err != nil {
		return errors.Wrapf(err, "could not copy %#x bytes at %#x", size, vaddr)
	}
	return nil
}

// Read returns size bytes starting at virtual address vaddr of the image
// bound to f.
func Read(f *elfmeta.File, vaddr, size uint64) ([]byte, error) {
	path, off, err := f.Locate(vaddr)
	if err != nil {
		return nil, err
	}
	logflags.ExtractLogger().Debugf("reading %#x bytes at %#x (file offset %#x) of %s", size, vaddr, off, path)

	src, err := openRange(path, vaddr, off, size)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	buf := make([]byte, size)
	n, err := io.ReadFull(src, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, errors.Wrapf(ErrShortRead, "%#x bytes at %#x, only %#x available", size, vaddr, n)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %#x bytes at %#x", size, vaddr)
	}
	return buf, nil
}

// openRange opens the image at path positioned at off, after checking that
// the image holds size bytes from there.
func openRange(path string, vaddr, off, size uint64) (*os.File, error) {
	if size > math.MaxInt64 {
		return nil, errors.Wrapf(elfmeta.ErrInvalidArgument, "size %#x too large", size)
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open image")
	}
	fi, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, errors.Wrap(err, "could not stat image")
	}
	var avail uint64
	if end := uint64(fi.Size()); off < end {
		avail = end - off
	}
	if size > avail {
		fh.Close()
		return nil, errors.Wrapf(ErrShortRead, "%#x bytes at %#x, only %#x available", size, vaddr, avail)
	}
	if _, err := fh.Seek(int64(off), io.SeekStart); err != nil {
		fh.Close()
		return nil, errors.Wrapf(err, "could not seek to %#x", off)
	}
	return fh, nil
}
