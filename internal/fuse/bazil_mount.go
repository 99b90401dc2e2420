//go:build bazil && !cgofuse
// +build bazil,!cgofuse

package fuse

import (
	"context"
	"path/filepath"
	"sync"

	fuselib "bazil.org/fuse"
	fusefslib "bazil.org/fuse/fs"
	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/utils"
)

// BazilMountManager manages bazil.org/fuse mounts
type BazilMountManager struct {
	filesystem *BazilFS
	mountPoint string
	opts       *MountOptions
	logger     *zap.Logger

	mu      sync.Mutex
	conn    *fuselib.Conn
	served  chan struct{}
	mounted bool
}

// NewBazilMountManager creates a new bazil mount manager
func NewBazilMountManager(filesystem *BazilFS, mountPoint string, opts *MountOptions, logger *zap.Logger) *BazilMountManager {
	return &BazilMountManager{
		filesystem: filesystem,
		mountPoint: filepath.Clean(mountPoint),
		opts:       orDefault(opts),
		logger:     utils.LoggerOrNop(logger),
	}
}

// Mount mounts the filesystem and waits until the server asks for the root.
func (m *BazilMountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return errors.NewError(errors.ErrCodeAlreadyMounted, "filesystem is already mounted").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
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

	conn, err := fuselib.Mount(m.mountPoint, m.mountOptions()...)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeMountFailed, "failed to mount filesystem").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}

	served := make(chan struct{})
	go func() {
		defer close(served)
		defer conn.Close()
		if err := fusefslib.Serve(conn, m.filesystem); err != nil {
			m.logger.Warn("FUSE server stopped with error",
				zap.String("mount_point", m.mountPoint),
				zap.Error(err))
		}
	}()

	select {
	case <-m.filesystem.Ready():
	case <-served:
		return errors.NewError(errors.ErrCodeMountFailed, "server stopped before the mount completed").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	case <-ctx.Done():
		_ = fuselib.Unmount(m.mountPoint)
		return errors.Wrap(ctx.Err(), errors.ErrCodeMountFailed, "mount cancelled").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}

	m.conn = conn
	m.served = served
	m.mounted = true
	m.logger.Info("filesystem mounted",
		zap.String("mount_point", m.mountPoint),
		zap.String("binding", BindingName))
	return nil
}

// Unmount unmounts the filesystem, falling back to a lazy unmount.
func (m *BazilMountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted {
		return errors.NewError(errors.ErrCodeNotMounted, "filesystem is not mounted").
			WithComponent("fuse").
			WithContext("mount_point", m.mountPoint)
	}

	if err := fuselib.Unmount(m.mountPoint); err != nil {
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
	<-m.served

	m.mounted = false
	m.conn = nil
	m.logger.Info("filesystem unmounted", zap.String("mount_point", m.mountPoint))
	return nil
}

// IsMounted returns whether the filesystem is mounted
func (m *BazilMountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// MountPoint returns the mount point
func (m *BazilMountManager) MountPoint() string {
	return m.mountPoint
}

func (m *BazilMountManager) mountOptions() []fuselib.MountOption {
	opts := []fuselib.MountOption{
		fuselib.FSName(m.opts.FSName),
		fuselib.ReadOnly(),
	}
	if m.opts.Subtype != "" {
		opts = append(opts, fuselib.Subtype(m.opts.Subtype))
	}
	if m.opts.AllowOther {
		opts = append(opts, fuselib.AllowOther())
	}
	return opts
}
