//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/routefs/routefs/pkg/types"
)

// memOps serves one directory with one file.
type memOps struct {
	released []uint64
}

func (m *memOps) ReadDir(_ context.Context, path string) (int, []string) {
	if path == "/" {
		return types.StatusOK, []string{".", "..", "a.txt"}
	}
	return types.StatusOK, []string{".", ".."}
}

func (m *memOps) Getattr(path string) (types.Attributes, int) {
	switch path {
	case "/":
		return types.Attributes{Mode: types.ModeDir | 0o755, Nlink: 1, Size: 100}, types.StatusOK
	case "/a.txt":
		return types.Attributes{Mode: types.ModeRegular | 0o644, Nlink: 1, Size: 5}, types.StatusOK
	}
	return types.Attributes{}, types.StatusNotFound
}

func (m *memOps) Open(_ context.Context, path string) (uint64, int) {
	if path != "/a.txt" {
		return 0, types.StatusNotFound
	}
	return 7, types.StatusOK
}

func (m *memOps) Read(_ context.Context, _ string, fd uint64, buf []byte, off int64) int {
	if fd != 7 {
		return types.StatusBadFD
	}
	data := "hello"
	if off >= int64(len(data)) {
		return 0
	}
	return copy(buf, data[off:])
}

func (m *memOps) Release(_ string, fd uint64) int {
	m.released = append(m.released, fd)
	return types.StatusOK
}

func TestCgoFuseOperations(t *testing.T) {
	ops := &memOps{}
	f := NewCgoFuseFS(ops, nil, nil)

	var stat fuse.Stat_t
	require.Equal(t, 0, f.Getattr("/a.txt", &stat, ^uint64(0)))
	assert.Equal(t, int64(5), stat.Size)
	assert.Equal(t, -fuse.ENOENT, f.Getattr("/missing", &stat, ^uint64(0)))

	var names []string
	require.Equal(t, 0, f.Readdir("/", func(name string, _ *fuse.Stat_t, _ int64) bool {
		names = append(names, name)
		return true
	}, 0, 0))
	assert.Equal(t, []string{".", "..", "a.txt"}, names)

	status, _ := f.Open("/a.txt", fuse.O_RDWR)
	assert.Equal(t, -fuse.EROFS, status)

	status, fh := f.Open("/a.txt", fuse.O_RDONLY)
	require.Equal(t, 0, status)

	buf := make([]byte, 10)
	n := f.Read("/a.txt", buf, 3, fh)
	assert.Equal(t, "lo", string(buf[:n]))
	assert.Equal(t, 0, f.Release("/a.txt", fh))
	assert.Equal(t, []uint64{7}, ops.released)
}

func TestCgoFuseInitSignalsReady(t *testing.T) {
	f := NewCgoFuseFS(&memOps{}, nil, nil)
	f.Init()
	f.Init()
	<-f.Ready()
}
