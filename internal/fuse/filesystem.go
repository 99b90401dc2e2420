//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/types"
	"github.com/routefs/routefs/pkg/utils"
)

// FileSystem serves Operations as a go-fuse node tree
type FileSystem struct {
	ops    Operations
	opts   *MountOptions
	logger *zap.Logger
}

// NewFileSystem creates a new FUSE filesystem instance
func NewFileSystem(ops Operations, opts *MountOptions, logger *zap.Logger) *FileSystem {
	return &FileSystem{
		ops:    ops,
		opts:   orDefault(opts),
		logger: utils.LoggerOrNop(logger),
	}
}

// Root returns the root inode
func (f *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fs: f, path: "/"}
}

var (
	_ fs.NodeGetattrer = (*DirectoryNode)(nil)
	_ fs.NodeLookuper  = (*DirectoryNode)(nil)
	_ fs.NodeReaddirer = (*DirectoryNode)(nil)
	_ fs.NodeGetattrer = (*FileNode)(nil)
	_ fs.NodeOpener    = (*FileNode)(nil)
	_ fs.FileReader    = (*FileHandle)(nil)
	_ fs.FileReleaser  = (*FileHandle)(nil)
)

// DirectoryNode represents a directory in the filesystem
type DirectoryNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

// Getattr gets directory attributes
func (n *DirectoryNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attrs, status := n.fs.ops.Getattr(n.path)
	if status < 0 {
		return errno(status)
	}
	fillAttr(&out.Attr, attrs)
	out.SetTimeout(n.fs.opts.AttrTimeout)
	return 0
}

// Lookup resolves a child from the attributes cached by earlier listings.
func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := utils.JoinPath(n.path, name)

	attrs, status := n.fs.ops.Getattr(childPath)
	if status < 0 {
		return nil, errno(status)
	}

	fillAttr(&out.Attr, attrs)
	out.SetEntryTimeout(n.fs.opts.EntryTimeout)
	out.SetAttrTimeout(n.fs.opts.AttrTimeout)

	var child fs.InodeEmbedder
	if attrs.IsDir() {
		child = &DirectoryNode{fs: n.fs, path: childPath}
	} else {
		child = &FileNode{fs: n.fs, path: childPath}
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: attrs.Mode & types.ModeType}), 0
}

// Readdir reads directory contents. go-fuse adds "." and ".." itself.
func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	status, names := n.fs.ops.ReadDir(ctx, n.path)
	if status < 0 {
		n.fs.logger.Debug("readdir failed", zap.String("path", n.path), zap.Int("status", status))
		return nil, errno(status)
	}

	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		if utils.IsSyntheticEntry(name) {
			continue
		}
		mode := uint32(fuse.S_IFREG)
		if attrs, st := n.fs.ops.Getattr(utils.JoinPath(n.path, name)); st >= 0 {
			mode = attrs.Mode & types.ModeType
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

// FileNode represents a file in the filesystem
type FileNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

// Getattr gets file attributes
func (f *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attrs, status := f.fs.ops.Getattr(f.path)
	if status < 0 {
		return errno(status)
	}
	fillAttr(&out.Attr, attrs)
	out.SetTimeout(f.fs.opts.AttrTimeout)
	return 0
}

// Open opens a file
func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if wantsWrite(int(flags)) {
		return nil, 0, syscall.EROFS
	}

	fd, status := f.fs.ops.Open(ctx, f.path)
	if status < 0 {
		return nil, 0, errno(status)
	}

	var fuseFlags uint32
	if f.fs.opts.DirectIO {
		fuseFlags |= fuse.FOPEN_DIRECT_IO
	}
	return &FileHandle{fs: f.fs, path: f.path, fd: fd}, fuseFlags, 0
}

// FileHandle represents an open file handle
type FileHandle struct {
	fs   *FileSystem
	path string
	fd   uint64
}

// Read reads data from the file
func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n := fh.fs.ops.Read(ctx, fh.path, fh.fd, dest, off)
	if n < 0 {
		return nil, errno(n)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Release releases the file handle
func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	return errno(fh.fs.ops.Release(fh.path, fh.fd))
}

func fillAttr(out *fuse.Attr, attrs types.Attributes) {
	out.Mode = attrs.Mode
	out.Size = attrs.Size
	out.Blocks = blocks(attrs.Size)
	out.Nlink = attrs.Nlink
	out.Uid = attrs.UID
	out.Gid = attrs.GID
	out.SetTimes(&attrs.Atime, &attrs.Mtime, &attrs.Ctime)
}
