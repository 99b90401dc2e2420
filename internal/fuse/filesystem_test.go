//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"bufio"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/types"
)

// fakeOps is an in-memory operation table.
type fakeOps struct {
	mu       sync.Mutex
	dirs     map[string][]string
	attrs    map[string]types.Attributes
	content  map[string]string
	next     uint64
	open     map[uint64]string
	released []uint64
}

func newFakeOps() *fakeOps {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeOps{
		dirs: map[string][]string{
			"/":     {".", "..", "docs"},
			"/docs": {".", "..", "a.txt", "sub"},
		},
		attrs: map[string]types.Attributes{
			"/":           {Mode: types.ModeDir | 0o755, Nlink: 1, Size: 100, Mtime: now},
			"/docs":       {Mode: types.ModeDir | 0o755, Nlink: 1, Size: 100, Mtime: now},
			"/docs/a.txt": {Mode: types.ModeRegular | 0o644, Nlink: 1, Size: 100, UID: 501, GID: 20, Mtime: now},
			"/docs/sub":   {Mode: types.ModeDir | 0o755, Nlink: 1, Size: 100, Mtime: now},
		},
		content: map[string]string{"/docs/a.txt": "hello"},
		open:    make(map[uint64]string),
	}
}

func (f *fakeOps) ReadDir(_ context.Context, path string) (int, []string) {
	names, ok := f.dirs[path]
	if !ok {
		return types.StatusOK, []string{".", ".."}
	}
	return types.StatusOK, names
}

func (f *fakeOps) Getattr(path string) (types.Attributes, int) {
	attrs, ok := f.attrs[path]
	if !ok {
		return types.Attributes{}, types.StatusNotFound
	}
	return attrs, types.StatusOK
}

func (f *fakeOps) Open(_ context.Context, path string) (uint64, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.content[path]; !ok {
		return 0, types.StatusNotFound
	}
	fd := f.next
	f.next++
	f.open[fd] = path
	return fd, types.StatusOK
}

func (f *fakeOps) Read(_ context.Context, _ string, fd uint64, buf []byte, off int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.open[fd]
	if !ok {
		return types.StatusBadFD
	}
	data := f.content[path]
	if off >= int64(len(data)) {
		return 0
	}
	return copy(buf, data[off:])
}

func (f *fakeOps) Release(_ string, fd uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, fd)
	f.released = append(f.released, fd)
	return types.StatusOK
}

func newTestFS() (*FileSystem, *fakeOps) {
	ops := newFakeOps()
	return NewFileSystem(ops, nil, nil), ops
}

func collect(t *testing.T, stream fs.DirStream) []fuse.DirEntry {
	t.Helper()
	var entries []fuse.DirEntry
	for stream.HasNext() {
		e, errno := stream.Next()
		require.Equal(t, syscall.Errno(0), errno)
		entries = append(entries, e)
	}
	return entries
}

func TestDirectoryReaddir(t *testing.T) {
	filesystem, _ := newTestFS()
	dir := &DirectoryNode{fs: filesystem, path: "/docs"}

	stream, errno := dir.Readdir(context.Background())
	require.Equal(t, syscall.Errno(0), errno)

	entries := collect(t, stream)
	require.Len(t, entries, 2, "synthetic entries are dropped")
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, uint32(fuse.S_IFREG), entries[0].Mode)
	assert.Equal(t, "sub", entries[1].Name)
	assert.Equal(t, uint32(fuse.S_IFDIR), entries[1].Mode)
}

func TestGetattrFillsAttributes(t *testing.T) {
	filesystem, _ := newTestFS()
	file := &FileNode{fs: filesystem, path: "/docs/a.txt"}

	var out fuse.AttrOut
	require.Equal(t, syscall.Errno(0), file.Getattr(context.Background(), nil, &out))
	assert.Equal(t, types.ModeRegular|0o644, out.Mode)
	assert.Equal(t, uint64(100), out.Size)
	assert.Equal(t, uint64(1), out.Blocks)
	assert.Equal(t, uint32(501), out.Uid)
	assert.Equal(t, uint32(20), out.Gid)
	assert.Equal(t, uint64(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix()), out.Mtime)

	missing := &FileNode{fs: filesystem, path: "/nope"}
	assert.Equal(t, syscall.ENOENT, missing.Getattr(context.Background(), nil, &out))
}

func TestLookup(t *testing.T) {
	filesystem, _ := newTestFS()
	root := filesystem.Root().(*DirectoryNode)
	fs.NewNodeFS(root, &fs.Options{})

	var out fuse.EntryOut
	docs, errno := root.Lookup(context.Background(), "docs", &out)
	require.Equal(t, syscall.Errno(0), errno)
	assert.True(t, docs.IsDir())
	assert.Equal(t, types.ModeDir|0o755, out.Mode)

	_, errno = root.Lookup(context.Background(), "missing", &out)
	assert.Equal(t, syscall.ENOENT, errno)

	docsNode := docs.Operations().(*DirectoryNode)
	file, errno := docsNode.Lookup(context.Background(), "a.txt", &out)
	require.Equal(t, syscall.Errno(0), errno)
	assert.False(t, file.IsDir())
	assert.Equal(t, "/docs/a.txt", file.Operations().(*FileNode).path)
}

func TestFileOpenReadRelease(t *testing.T) {
	filesystem, ops := newTestFS()
	file := &FileNode{fs: filesystem, path: "/docs/a.txt"}

	_, _, errno := file.Open(context.Background(), syscall.O_RDWR)
	assert.Equal(t, syscall.EROFS, errno)

	fh, flags, errno := file.Open(context.Background(), syscall.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), flags)

	handle := fh.(*FileHandle)
	dest := make([]byte, 10)
	result, errno := handle.Read(context.Background(), dest, 3)
	require.Equal(t, syscall.Errno(0), errno)
	data, status := result.Bytes(make([]byte, 10))
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, "lo", string(data))

	assert.Equal(t, syscall.Errno(0), handle.Release(context.Background()))
	assert.Equal(t, []uint64{0}, ops.released)

	_, errno = handle.Read(context.Background(), dest, 0)
	assert.Equal(t, syscall.EBADF, errno)

	missing := &FileNode{fs: filesystem, path: "/docs/none"}
	_, _, errno = missing.Open(context.Background(), syscall.O_RDONLY)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestDirectIOCanBeDisabled(t *testing.T) {
	opts := DefaultMountOptions()
	opts.DirectIO = false
	file := &FileNode{fs: NewFileSystem(newFakeOps(), opts, nil), path: "/docs/a.txt"}

	_, flags, errno := file.Open(context.Background(), syscall.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(0), flags)
}

func TestMountManagerErrors(t *testing.T) {
	filesystem, _ := newTestFS()
	var mount PlatformMount = NewMountManager(filesystem, filepath.Join(t.TempDir(), "missing"), nil, nil)

	err := mount.Mount(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePathInvalid))
	assert.False(t, mount.IsMounted())

	err = mount.Unmount()
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotMounted))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewMountManager(filesystem, t.TempDir(), nil, nil).Mount(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMountFailed))
}

func TestBuildFUSEOptions(t *testing.T) {
	opts := DefaultMountOptions()
	opts.AllowOther = true
	m := NewMountManager(nil, "/mnt/routefs/", opts, nil)

	built := m.buildFUSEOptions()
	assert.Equal(t, "/mnt/routefs", m.MountPoint())
	assert.Equal(t, "routefs", built.FsName)
	assert.True(t, built.AllowOther)
	assert.Contains(t, built.Options, "ro")
	assert.Equal(t, time.Second, *built.AttrTimeout)
}

func TestMountsContain(t *testing.T) {
	mounts := "proc /proc proc rw 0 0\nroutefs /mnt/routefs fuse.routefs ro 0 0\n"
	assert.True(t, mountsContain(bufio.NewScanner(strings.NewReader(mounts)), "/mnt/routefs"))
	assert.False(t, mountsContain(bufio.NewScanner(strings.NewReader(mounts)), "/mnt"))
}

func TestErrno(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), errno(0))
	assert.Equal(t, syscall.Errno(0), errno(12))
	assert.Equal(t, syscall.ENOENT, errno(types.StatusNotFound))
	assert.True(t, wantsWrite(syscall.O_WRONLY))
	assert.False(t, wantsWrite(syscall.O_RDONLY))
}
