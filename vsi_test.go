package gdalframe

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ godal.KeySizerReaderAt = (*bufferStore)(nil)

func TestBufferStore(t *testing.T) {
	store := &bufferStore{buffers: map[string]*buffer{}}

	path, release := store.add([]byte("hello"), "roads.geojson")
	require.True(t, strings.HasPrefix(path, bufferPrefix))
	require.True(t, strings.HasSuffix(path, "/roads.geojson"))

	// the handler is registered with the prefix stripped
	key := strings.TrimPrefix(path, bufferPrefix)
	size, err := store.Size(key)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	buf := make([]byte, 3)
	n, err := store.ReadAt(key, buf, 1)
	require.NoError(t, err)
	assert.Equal(t, "ell", string(buf[:n]))

	n, err = store.ReadAt(key, buf, 3)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "lo", string(buf[:n]))

	// sidecar lookups
	id, _, _ := strings.Cut(key, "/")
	_, err = store.Size(id + "/roads.prj")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = store.Size("nokey")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = store.Size(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	release()
	_, err = store.ReadAt(key, buf, 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, store.buffers)
}

func TestMemPath(t *testing.T) {
	a := memPath("dir/out.shp.zip")
	b := memPath("dir/out.shp.zip")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, memPrefix))
	assert.True(t, strings.HasSuffix(a, "/out.shp.zip"))
}
