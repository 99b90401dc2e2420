package fuse

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/routefs/routefs/pkg/types"
)

// Operations is the kernel-facing operation table a mount serves. Status
// values are zero or positive on success and negative POSIX errors otherwise.
type Operations interface {
	ReadDir(ctx context.Context, path string) (int, []string)
	Getattr(path string) (types.Attributes, int)
	Open(ctx context.Context, path string) (uint64, int)
	Read(ctx context.Context, path string, fd uint64, buf []byte, off int64) int
	Release(path string, fd uint64) int
}

// PlatformMount is a mount of Operations through one kernel binding.
type PlatformMount interface {
	// Mount returns once the binding confirms the filesystem is mounted.
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	MountPoint() string
}

// MountOptions contains FUSE mount options
type MountOptions struct {
	FSName     string `yaml:"fsname"`
	Subtype    string `yaml:"subtype"`
	AllowOther bool   `yaml:"allow_other"`
	Debug      bool   `yaml:"debug"`

	// DirectIO makes the kernel read until the content ends instead of
	// stopping at the size reported by getattr.
	DirectIO bool `yaml:"direct_io"`

	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

// DefaultMountOptions returns the options used when none are configured.
func DefaultMountOptions() *MountOptions {
	return &MountOptions{
		FSName:       "routefs",
		Subtype:      "routefs",
		DirectIO:     true,
		AttrTimeout:  time.Second,
		EntryTimeout: time.Second,
	}
}

func orDefault(opts *MountOptions) *MountOptions {
	if opts == nil {
		return DefaultMountOptions()
	}
	return opts
}

// errno converts a negative status into its error number.
func errno(status int) syscall.Errno {
	if status >= 0 {
		return 0
	}
	return syscall.Errno(-status)
}

// writeFlags are the open flags that require write access.
const writeFlags = syscall.O_WRONLY | syscall.O_RDWR | syscall.O_APPEND | syscall.O_CREAT | syscall.O_TRUNC

func wantsWrite(flags int) bool {
	return flags&writeFlags != 0
}

func blocks(size uint64) uint64 {
	return (size + 511) / 512
}

// fileMode converts POSIX mode bits into an os.FileMode.
func fileMode(mode uint32) os.FileMode {
	m := os.FileMode(mode & 0o777)
	switch mode & types.ModeType {
	case types.ModeDir:
		m |= os.ModeDir
	case syscall.S_IFLNK:
		m |= os.ModeSymlink
	}
	return m
}
