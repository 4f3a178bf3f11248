package bytesio

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

// Source owns the bytes of one container. File-backed sources persist on
// Commit through a temp file and rename; buffer-backed sources only swap
// their buffer. A Source is not safe for concurrent use.
type Source struct {
	path   string
	perm   os.FileMode
	data   []byte
	closed bool
}

// Open reads the whole file at path.
func Open(path string) (*Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, core.Wrap(core.IOError, "open", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrap(core.IOError, "open", err)
	}
	return &Source{path: path, perm: fi.Mode().Perm(), data: data}, nil
}

// FromBytes returns a buffer-backed source holding a private copy of b.
func FromBytes(b []byte) *Source {
	return &Source{data: append([]byte(nil), b...)}
}

// Path is empty for buffer-backed sources.
func (s *Source) Path() string { return s.path }

// Bytes returns the committed bytes. Callers must not modify them.
func (s *Source) Bytes() ([]byte, error) {
	if s.closed {
		return nil, core.Errorf(core.IOError, "bytes", "source is closed")
	}
	return s.data, nil
}

// Commit makes data the new content of the source. On failure the
// previous content is left untouched, both in memory and on disk. A file
// whose content changed since it was read is not overwritten.
func (s *Source) Commit(data []byte) error {
	if s.closed {
		return core.Errorf(core.IOError, "commit", "source is closed")
	}
	if s.path != "" {
		disk, err := os.ReadFile(s.path)
		if err != nil {
			return core.Wrap(core.IOError, "commit", err)
		}
		if !bytes.Equal(disk, s.data) {
			return core.Errorf(core.IOError, "commit", "%s changed on disk since it was read", s.path)
		}
		if err := AtomicWrite(s.path, data, s.perm); err != nil {
			return err
		}
	}
	s.data = data
	return nil
}

// Close releases the buffer. Calling it again is a no-op.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.data = nil
	return nil
}

// AtomicWrite writes data to a temp file next to path and renames it over
// path. The destination is never observed partially written.
func AtomicWrite(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return core.Wrap(core.IOError, "write", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return core.Wrap(core.IOError, "write", err)
	}
	if err = tmp.Sync(); err != nil {
		return core.Wrap(core.IOError, "write", err)
	}
	if err = tmp.Close(); err != nil {
		return core.Wrap(core.IOError, "write", err)
	}
	if perm == 0 {
		perm = 0o644
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return core.Wrap(core.IOError, "write", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return core.Wrap(core.IOError, "write", err)
	}
	return nil
}
