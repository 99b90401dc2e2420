//go:build bazil && !cgofuse
// +build bazil,!cgofuse

package fuse

import (
	"context"
	"os"
	"syscall"
	"testing"

	fuselib "bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBazilRootSignalsReady(t *testing.T) {
	b := NewBazilFS(newFakeOps(), nil, nil)

	select {
	case <-b.Ready():
		t.Fatal("ready before root was requested")
	default:
	}

	node, err := b.Root()
	require.NoError(t, err)
	_, err = b.Root()
	require.NoError(t, err, "root may be requested more than once")
	<-b.Ready()

	var attr fuselib.Attr
	require.NoError(t, node.Attr(context.Background(), &attr))
	assert.True(t, attr.Mode.IsDir())
}

func TestBazilDirectory(t *testing.T) {
	b := NewBazilFS(newFakeOps(), nil, nil)
	dir := &BazilDir{fs: b, path: "/docs"}

	dirents, err := dir.ReadDirAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []fuselib.Dirent{
		{Name: "a.txt", Type: fuselib.DT_File},
		{Name: "sub", Type: fuselib.DT_Dir},
	}, dirents)

	node, err := dir.Lookup(context.Background(), "sub")
	require.NoError(t, err)
	assert.IsType(t, &BazilDir{}, node)

	_, err = dir.Lookup(context.Background(), "missing")
	assert.Equal(t, fuselib.Errno(syscall.ENOENT), err)
}

func TestBazilFileHandle(t *testing.T) {
	ops := newFakeOps()
	b := NewBazilFS(ops, nil, nil)
	file := &BazilFile{fs: b, path: "/docs/a.txt"}

	var attr fuselib.Attr
	require.NoError(t, file.Attr(context.Background(), &attr))
	assert.Equal(t, os.FileMode(0o644), attr.Mode)
	assert.Equal(t, uint32(501), attr.Uid)

	_, err := file.Open(context.Background(), &fuselib.OpenRequest{Flags: fuselib.OpenWriteOnly}, &fuselib.OpenResponse{})
	assert.Equal(t, fuselib.Errno(syscall.EROFS), err)

	resp := &fuselib.OpenResponse{}
	h, err := file.Open(context.Background(), &fuselib.OpenRequest{Flags: fuselib.OpenReadOnly}, resp)
	require.NoError(t, err)
	assert.NotZero(t, resp.Flags&fuselib.OpenDirectIO)

	handle := h.(*BazilHandle)
	readResp := &fuselib.ReadResponse{}
	require.NoError(t, handle.Read(context.Background(), &fuselib.ReadRequest{Offset: 0, Size: 5}, readResp))
	assert.Equal(t, "hello", string(readResp.Data))

	require.NoError(t, handle.Release(context.Background(), &fuselib.ReleaseRequest{}))
	assert.Equal(t, []uint64{0}, ops.released)
}
