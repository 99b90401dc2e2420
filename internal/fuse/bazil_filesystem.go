//go:build bazil && !cgofuse
// +build bazil,!cgofuse

package fuse

import (
	"context"
	"sync"
	"syscall"

	fuselib "bazil.org/fuse"
	fusefslib "bazil.org/fuse/fs"
	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/types"
	"github.com/routefs/routefs/pkg/utils"
)

// BazilFS serves Operations as a bazil.org/fuse node tree.
type BazilFS struct {
	ops    Operations
	opts   *MountOptions
	logger *zap.Logger

	rootOnce sync.Once
	ready    chan struct{}
}

// NewBazilFS creates a bazil filesystem over ops.
func NewBazilFS(ops Operations, opts *MountOptions, logger *zap.Logger) *BazilFS {
	return &BazilFS{
		ops:    ops,
		opts:   orDefault(opts),
		logger: utils.LoggerOrNop(logger),
		ready:  make(chan struct{}),
	}
}

// Root is first called once the kernel and the library agreed on the
// protocol, which is when the mount is confirmed.
func (b *BazilFS) Root() (fusefslib.Node, error) {
	b.rootOnce.Do(func() { close(b.ready) })
	return &BazilDir{fs: b, path: "/"}, nil
}

// Ready is closed once Root has been called.
func (b *BazilFS) Ready() <-chan struct{} {
	return b.ready
}

var (
	_ fusefslib.FS                 = (*BazilFS)(nil)
	_ fusefslib.NodeStringLookuper = (*BazilDir)(nil)
	_ fusefslib.HandleReadDirAller = (*BazilDir)(nil)
	_ fusefslib.NodeOpener         = (*BazilFile)(nil)
	_ fusefslib.HandleReader       = (*BazilHandle)(nil)
	_ fusefslib.HandleReleaser     = (*BazilHandle)(nil)
)

// BazilDir is a directory node.
type BazilDir struct {
	fs   *BazilFS
	path string
}

// Attr fills directory attributes.
func (d *BazilDir) Attr(ctx context.Context, attr *fuselib.Attr) error {
	return d.fs.attr(d.path, attr)
}

// Lookup resolves a child from the attributes cached by earlier listings.
func (d *BazilDir) Lookup(ctx context.Context, name string) (fusefslib.Node, error) {
	childPath := utils.JoinPath(d.path, name)
	attrs, status := d.fs.ops.Getattr(childPath)
	if status < 0 {
		return nil, fuselib.Errno(errno(status))
	}
	if attrs.IsDir() {
		return &BazilDir{fs: d.fs, path: childPath}, nil
	}
	return &BazilFile{fs: d.fs, path: childPath}, nil
}

// ReadDirAll lists the directory without the synthetic entries.
func (d *BazilDir) ReadDirAll(ctx context.Context) ([]fuselib.Dirent, error) {
	status, names := d.fs.ops.ReadDir(ctx, d.path)
	if status < 0 {
		return nil, fuselib.Errno(errno(status))
	}

	dirents := make([]fuselib.Dirent, 0, len(names))
	for _, name := range names {
		if utils.IsSyntheticEntry(name) {
			continue
		}
		typ := fuselib.DT_File
		if attrs, st := d.fs.ops.Getattr(utils.JoinPath(d.path, name)); st >= 0 && attrs.IsDir() {
			typ = fuselib.DT_Dir
		}
		dirents = append(dirents, fuselib.Dirent{Name: name, Type: typ})
	}
	return dirents, nil
}

// BazilFile is a file node.
type BazilFile struct {
	fs   *BazilFS
	path string
}

// Attr fills file attributes.
func (f *BazilFile) Attr(ctx context.Context, attr *fuselib.Attr) error {
	return f.fs.attr(f.path, attr)
}

// Open allocates a descriptor when a read route matches.
func (f *BazilFile) Open(ctx context.Context, req *fuselib.OpenRequest, resp *fuselib.OpenResponse) (fusefslib.Handle, error) {
	if !req.Flags.IsReadOnly() {
		return nil, fuselib.Errno(syscall.EROFS)
	}
	fd, status := f.fs.ops.Open(ctx, f.path)
	if status < 0 {
		return nil, fuselib.Errno(errno(status))
	}
	if f.fs.opts.DirectIO {
		resp.Flags |= fuselib.OpenDirectIO
	}
	return &BazilHandle{fs: f.fs, path: f.path, fd: fd}, nil
}

// BazilHandle is an open file.
type BazilHandle struct {
	fs   *BazilFS
	path string
	fd   uint64
}

// Read serves req from the descriptor's content.
func (h *BazilHandle) Read(ctx context.Context, req *fuselib.ReadRequest, resp *fuselib.ReadResponse) error {
	buf := make([]byte, req.Size)
	n := h.fs.ops.Read(ctx, h.path, h.fd, buf, req.Offset)
	if n < 0 {
		return fuselib.Errno(errno(n))
	}
	resp.Data = buf[:n]
	return nil
}

// Release drops the descriptor.
func (h *BazilHandle) Release(ctx context.Context, req *fuselib.ReleaseRequest) error {
	if status := h.fs.ops.Release(h.path, h.fd); status < 0 {
		return fuselib.Errno(errno(status))
	}
	return nil
}

func (b *BazilFS) attr(path string, attr *fuselib.Attr) error {
	attrs, status := b.ops.Getattr(path)
	if status < 0 {
		return fuselib.Errno(errno(status))
	}
	fillBazilAttr(attr, attrs)
	attr.Valid = b.opts.AttrTimeout
	return nil
}

func fillBazilAttr(out *fuselib.Attr, attrs types.Attributes) {
	out.Size = attrs.Size
	out.Blocks = blocks(attrs.Size)
	out.Mode = fileMode(attrs.Mode)
	out.Nlink = attrs.Nlink
	out.Uid = attrs.UID
	out.Gid = attrs.GID
	out.Atime = attrs.Atime
	out.Mtime = attrs.Mtime
	out.Ctime = attrs.Ctime
}
