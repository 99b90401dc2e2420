//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/utils"
)

// MountManager manages go-fuse mount operations
type MountManager struct {
	filesystem *FileSystem
	mountPoint string
	opts       *MountOptions
	logger     *zap.Logger

	mu      sync.Mutex
	server  *fuse.Server
	mounted bool
}

// NewMountManager creates a new mount manager
func NewMountManager(filesystem *FileSystem, mountPoint string, opts *MountOptions, logger *zap.Logger) *MountManager {
	return &MountManager{
		filesystem: filesystem,
		mountPoint: filepath.Clean(mountPoint),
		opts:       orDefault(opts),
		logger:     utils.LoggerOrNop(logger),
	}
}

// Mount mounts the filesystem. go-fuse answers the kernel's init request
// before fs.Mount returns, so a nil error means the mount is live.
func (m *MountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return errors.NewError(errors.ErrCodeAlreadyMounted, "filesystem is already mounted").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeMountFailed, "mount cancelled").WithComponent("fuse")
	}

	if err := utils.ValidateMountPoint(m.mountPoint); err != nil {
		return errors.Wrap(err, errors.ErrCodePathInvalid, "invalid mount point").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}
	if isAlreadyMounted(m.mountPoint) {
		return errors.NewError(errors.ErrCodeAlreadyMounted, "mount point is already in use").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}

	server, err := fs.Mount(m.mountPoint, m.filesystem.Root(), m.buildFUSEOptions())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeMountFailed, "failed to mount filesystem").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}

	m.server = server
	m.mounted = true
	m.logger.Info("filesystem mounted",
		zap.String("mount_point", m.mountPoint),
		zap.String("binding", BindingName))

	go func() {
		server.Wait()
		m.mu.Lock()
		if m.server == server {
			m.mounted = false
			m.server = nil
		}
		m.mu.Unlock()
		m.logger.Debug("FUSE server stopped", zap.String("mount_point", m.mountPoint))
	}()

	return nil
}

// Unmount unmounts the filesystem
func (m *MountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted || m.server == nil {
		return errors.NewError(errors.ErrCodeNotMounted, "filesystem is not mounted").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}

	if err := m.server.Unmount(); err != nil {
		m.logger.Warn("unmount failed, trying lazy unmount",
			zap.String("mount_point", m.mountPoint),
			zap.Error(err))
		if lazyErr := lazyUnmount(m.mountPoint); lazyErr != nil {
			return errors.Wrap(err, errors.ErrCodeUnmountFailed, "unmount failed").
				WithComponent("fuse").
				WithContext("mount_point", m.mountPoint).
				WithContext("lazy_unmount", lazyErr.Error())
		}
	}

	m.mounted = false
	m.server = nil
	m.logger.Info("filesystem unmounted", zap.String("mount_point", m.mountPoint))
	return nil
}

// IsMounted checks if the filesystem is currently mounted
func (m *MountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// MountPoint returns the mount point
func (m *MountManager) MountPoint() string {
	return m.mountPoint
}

// Wait blocks until the server stops serving
func (m *MountManager) Wait() {
	m.mu.Lock()
	server := m.server
	m.mu.Unlock()
	if server != nil {
		server.Wait()
	}
}

func (m *MountManager) buildFUSEOptions() *fs.Options {
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:        m.opts.Subtype,
			FsName:      m.opts.FSName,
			DirectMount: true,
			Debug:       m.opts.Debug,
			AllowOther:  m.opts.AllowOther,
		},
		AttrTimeout:  &m.opts.AttrTimeout,
		EntryTimeout: &m.opts.EntryTimeout,
	}
	opts.Options = append(opts.Options, "ro")
	return opts
}

// isAlreadyMounted reports whether /proc/mounts lists mountPoint. It
// reports false where /proc/mounts is unavailable.
func isAlreadyMounted(mountPoint string) bool {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return false
	}
	defer f.Close()
	return mountsContain(bufio.NewScanner(f), mountPoint)
}

func mountsContain(scanner *bufio.Scanner, mountPoint string) bool {
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == mountPoint {
			return true
		}
	}
	return false
}

// lazyUnmount detaches the mount even if it is busy.
func lazyUnmount(mountPoint string) error {
	const mntDetach = 2
	if err := syscall.Unmount(mountPoint, mntDetach); err != nil {
		return fmt.Errorf("lazy unmount of %s: %w", mountPoint, err)
	}
	return nil
}
