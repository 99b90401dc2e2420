//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"sync"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/types"
	"github.com/routefs/routefs/pkg/utils"
)

// CgoFuseFS serves Operations through the path-based cgofuse interface
type CgoFuseFS struct {
	fuse.FileSystemBase

	ops    Operations
	opts   *MountOptions
	logger *zap.Logger

	initOnce sync.Once
	ready    chan struct{}
}

// NewCgoFuseFS creates a new cgofuse-based filesystem
func NewCgoFuseFS(ops Operations, opts *MountOptions, logger *zap.Logger) *CgoFuseFS {
	return &CgoFuseFS{
		ops:    ops,
		opts:   orDefault(opts),
		logger: utils.LoggerOrNop(logger),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the host has initialized the filesystem.
func (f *CgoFuseFS) Ready() <-chan struct{} {
	return f.ready
}

// Init is called by the host once the mount is established.
func (f *CgoFuseFS) Init() {
	f.initOnce.Do(func() { close(f.ready) })
}

// Getattr gets file attributes
func (f *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	attrs, status := f.ops.Getattr(path)
	if status < 0 {
		return status
	}
	fillStat(stat, attrs)
	return 0
}

// Opendir accepts every directory; listing content comes from Readdir.
func (f *CgoFuseFS) Opendir(path string) (int, uint64) {
	return 0, ^uint64(0)
}

// Readdir reads directory contents
func (f *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	status, names := f.ops.ReadDir(context.Background(), path)
	if status < 0 {
		return status
	}

	for _, name := range names {
		var stat *fuse.Stat_t
		if !utils.IsSyntheticEntry(name) {
			if attrs, st := f.ops.Getattr(utils.JoinPath(path, name)); st >= 0 {
				stat = &fuse.Stat_t{}
				fillStat(stat, attrs)
			}
		}
		if !fill(name, stat, 0) {
			break
		}
	}
	return 0
}

// Open opens a file
func (f *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	if flags&fuse.O_ACCMODE != fuse.O_RDONLY || flags&(fuse.O_APPEND|fuse.O_CREAT|fuse.O_TRUNC) != 0 {
		return -fuse.EROFS, ^uint64(0)
	}
	fd, status := f.ops.Open(context.Background(), path)
	if status < 0 {
		return status, ^uint64(0)
	}
	return 0, fd
}

// Read reads from a file
func (f *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	return f.ops.Read(context.Background(), path, fh, buff, ofst)
}

// Release closes a file
func (f *CgoFuseFS) Release(path string, fh uint64) int {
	return f.ops.Release(path, fh)
}

func fillStat(stat *fuse.Stat_t, attrs types.Attributes) {
	stat.Mode = attrs.Mode
	stat.Nlink = attrs.Nlink
	stat.Uid = attrs.UID
	stat.Gid = attrs.GID
	stat.Size = int64(attrs.Size)
	stat.Blocks = int64(blocks(attrs.Size))
	stat.Atim = fuse.NewTimespec(attrs.Atime)
	stat.Mtim = fuse.NewTimespec(attrs.Mtime)
	stat.Ctim = fuse.NewTimespec(attrs.Ctime)
}
