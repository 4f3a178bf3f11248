package image

import (
	"path/filepath"
	"sync"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

// writers records, per file, the handle allowed to save it. A handle
// claims its file on its first Save and keeps it until Close.
var writers = struct {
	sync.Mutex
	by map[string]*Handle
}{by: map[string]*Handle{}}

func writerKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}
	return path
}

// claim makes h the writer of its file. Buffer-backed handles own their
// buffer and always succeed.
func (h *Handle) claim() error {
	if h.src.Path() == "" || h.key != "" {
		return nil
	}
	key := writerKey(h.src.Path())
	writers.Lock()
	defer writers.Unlock()
	if other, ok := writers.by[key]; ok && other != h {
		return core.Errorf(core.IOError, "save", "%s is being written through another open handle", h.src.Path())
	}
	writers.by[key] = h
	h.key = key
	return nil
}

func (h *Handle) release() {
	if h.key == "" {
		return
	}
	writers.Lock()
	if writers.by[h.key] == h {
		delete(writers.by, h.key)
	}
	writers.Unlock()
	h.key = ""
}
