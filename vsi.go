package gdalframe

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
)

// bufferPrefix is the GDAL virtual file system prefix serving FromBytes input.
const bufferPrefix = "/vsigdalframe/"

// memPrefix is the /vsimem directory BytesFromFrame writes into.
const memPrefix = "/vsimem/gdalframe/"

// bufferStore serves registered byte slices to GDAL, read-only, under
// /vsigdalframe/<uuid>/<name>.
type bufferStore struct {
	mu      sync.RWMutex
	buffers map[string]*buffer
}

type buffer struct {
	name string
	data []byte
}

var (
	buffers         = &bufferStore{buffers: map[string]*buffer{}}
	bufferOnce      sync.Once
	bufferInstalled error
)

// installBufferHandler registers the /vsigdalframe/ handler with GDAL once.
// Keys reach the store without the prefix.
func installBufferHandler() error {
	bufferOnce.Do(func() {
		bufferInstalled = godal.RegisterVSIHandler(bufferPrefix, buffers, godal.VSIHandlerStripPrefix(true))
	})
	return bufferInstalled
}

// add exposes data to GDAL and returns its path and a release func.
func (s *bufferStore) add(data []byte, name string) (string, func()) {
	id := uuid.NewString()
	s.mu.Lock()
	s.buffers[id] = &buffer{name: name, data: data}
	s.mu.Unlock()
	return bufferPrefix + id + "/" + name, func() {
		s.mu.Lock()
		delete(s.buffers, id)
		s.mu.Unlock()
	}
}

// lookup resolves "<uuid>/<name>". Keys other than the registered file
// name (sidecar lookups) do not exist.
func (s *bufferStore) lookup(key string) (*buffer, error) {
	id, name, ok := strings.Cut(key, "/")
	if ok {
		s.mu.RLock()
		b := s.buffers[id]
		s.mu.RUnlock()
		if b != nil && b.name == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%s%s: %w", bufferPrefix, key, os.ErrNotExist)
}

// Size implements godal.KeySizerReaderAt.
func (s *bufferStore) Size(key string) (int64, error) {
	b, err := s.lookup(key)
	if err != nil {
		return 0, err
	}
	return int64(len(b.data)), nil
}

// ReadAt implements godal.KeySizerReaderAt. Reads past the end return the
// available bytes and io.EOF.
func (s *bufferStore) ReadAt(key string, p []byte, off int64) (int, error) {
	b, err := s.lookup(key)
	if err != nil {
		return 0, err
	}
	return bytes.NewReader(b.data).ReadAt(p, off)
}

// memPath returns a unique /vsimem path ending in name.
func memPath(name string) string {
	return memPrefix + uuid.NewString() + "/" + path.Base(name)
}
