//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/utils"
)

// CgoFuseMountManager manages cgofuse-based mounts
type CgoFuseMountManager struct {
	filesystem *CgoFuseFS
	mountPoint string
	opts       *MountOptions
	logger     *zap.Logger

	mu      sync.Mutex
	host    *fuse.FileSystemHost
	done    chan struct{}
	mounted bool
}

// NewCgoFuseMountManager creates a new cgofuse mount manager
func NewCgoFuseMountManager(filesystem *CgoFuseFS, mountPoint string, opts *MountOptions, logger *zap.Logger) *CgoFuseMountManager {
	return &CgoFuseMountManager{
		filesystem: filesystem,
		mountPoint: filepath.Clean(mountPoint),
		opts:       orDefault(opts),
		logger:     utils.LoggerOrNop(logger),
	}
}

// Mount starts the host and waits for its Init callback.
func (m *CgoFuseMountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return errors.NewError(errors.ErrCodeAlreadyMounted, "filesystem is already mounted").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}
	if runtime.GOOS != "windows" {
		if err := utils.ValidateMountPoint(m.mountPoint); err != nil {
			return errors.Wrap(err, errors.ErrCodePathInvalid, "invalid mount point").
				WithComponent("fuse").
				WithContext("mount_point", m.mountPoint)
		}
	}

	host := fuse.NewFileSystemHost(m.filesystem)
	done := make(chan struct{})
	failed := make(chan struct{})

	go func() {
		defer close(done)
		if !host.Mount(m.mountPoint, m.mountArgs()) {
			close(failed)
		}
	}()

	select {
	case <-m.filesystem.Ready():
	case <-failed:
		return errors.NewError(errors.ErrCodeMountFailed, "cgofuse host refused the mount").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	case <-ctx.Done():
		host.Unmount()
		return errors.Wrap(ctx.Err(), errors.ErrCodeMountFailed, "mount cancelled").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}

	m.host = host
	m.done = done
	m.mounted = true
	m.logger.Info("filesystem mounted",
		zap.String("mount_point", m.mountPoint),
		zap.String("binding", BindingName))
	return nil
}

// Unmount unmounts the filesystem
func (m *CgoFuseMountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted || m.host == nil {
		return errors.NewError(errors.ErrCodeNotMounted, "filesystem is not mounted").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}
	if !m.host.Unmount() {
		return errors.NewError(errors.ErrCodeUnmountFailed, "cgofuse host refused the unmount").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}
	<-m.done

	m.mounted = false
	m.host = nil
	m.logger.Info("filesystem unmounted", zap.String("mount_point", m.mountPoint))
	return nil
}

// IsMounted returns whether the filesystem is mounted
func (m *CgoFuseMountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// MountPoint returns the mount point
func (m *CgoFuseMountManager) MountPoint() string {
	return m.mountPoint
}

func (m *CgoFuseMountManager) mountArgs() []string {
	args := []string{
		"-o", "ro",
		"-o", "fsname=" + m.opts.FSName,
	}
	if m.opts.Subtype != "" && runtime.GOOS == "linux" {
		args = append(args, "-o", "subtype="+m.opts.Subtype)
	}
	if m.opts.AllowOther {
		args = append(args, "-o", "allow_other")
	}
	if m.opts.DirectIO {
		args = append(args, "-o", "direct_io")
	}
	if m.opts.Debug {
		args = append(args, "-d")
	}

	switch runtime.GOOS {
	case "darwin":
		args = append(args, "-o", "volname="+m.opts.FSName)
	case "windows":
		args = append(args, "-o", "FileSystemName="+m.opts.FSName)
	}
	return args
}
