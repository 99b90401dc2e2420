package routefs

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/routefs/routefs/internal/fuse"
	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/utils"
)

// MountFactory creates the binding that serves ops at mountPoint.
type MountFactory func(ops fuse.Operations, mountPoint string, opts *MountOptions, logger *zap.Logger) fuse.PlatformMount

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithMountFactory replaces the platform binding, typically with a fake.
func WithMountFactory(factory MountFactory) SessionOption {
	return func(s *Session) {
		s.factory = factory
	}
}

// Session owns a set of mounted paths and tears them down together.
type Session struct {
	logger  *zap.Logger
	factory MountFactory

	mu     sync.Mutex
	mounts map[string]fuse.PlatformMount
	closed bool
}

// NewSession creates an empty session using the binding compiled in.
func NewSession(logger *zap.Logger, opts ...SessionOption) *Session {
	s := &Session{
		logger:  utils.LoggerOrNop(logger).Named("session"),
		factory: fuse.NewPlatformMount,
		mounts:  make(map[string]fuse.PlatformMount),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount serves app at mountPath and returns once the binding confirms the
// mount. A nil opts uses DefaultMountOptions.
func (s *Session) Mount(ctx context.Context, mountPath string, app *App, opts *MountOptions) error {
	if err := utils.ValidateMountPoint(mountPath); err != nil {
		return errors.Wrap(err, errors.ErrCodePathInvalid, "invalid mount point").
			WithComponent("session").
			WithContext("mount_point", mountPath)
	}
	mountPath = filepath.Clean(mountPath)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.NewError(errors.ErrCodeMountFailed, "session is closed").
			WithComponent("session").
			WithContext("mount_point", mountPath)
	}
	if _, ok := s.mounts[mountPath]; ok {
		return errors.NewError(errors.ErrCodeAlreadyMounted, "path is already mounted by this session").
			WithComponent("session").
			WithContext("mount_point", mountPath)
	}

	if opts == nil {
		opts = DefaultMountOptions()
	}
	mount := s.factory(app.Dispatcher(), mountPath, opts, s.logger)
	if err := mount.Mount(ctx); err != nil {
		return err
	}

	s.mounts[mountPath] = mount
	s.logger.Info("mounted", zap.String("mount_point", mountPath), zap.Int("routes", len(app.Routes())))
	return nil
}

// Unmount tears down one path. The path stays recorded when the binding
// refuses, so Close retries it.
func (s *Session) Unmount(mountPath string) error {
	mountPath = filepath.Clean(mountPath)

	s.mu.Lock()
	defer s.mu.Unlock()

	mount, ok := s.mounts[mountPath]
	if !ok {
		return errors.NewError(errors.ErrCodeNotMounted, "path is not mounted by this session").
			WithComponent("session").
			WithContext("mount_point", mountPath)
	}

	if err := mount.Unmount(); err != nil {
		return unmountFailed(mountPath, err)
	}
	delete(s.mounts, mountPath)
	s.logger.Info("unmounted", zap.String("mount_point", mountPath))
	return nil
}

// MountedPaths returns the mounted paths in lexical order.
func (s *Session) MountedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.mounts))
	for p := range s.mounts {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Close unmounts every path. Failures are logged and aggregated, never
// fatal, and the session forgets every path either way. Further Mount
// calls fail; further Close calls return nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	paths := make([]string, 0, len(s.mounts))
	for p := range s.mounts {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var result *multierror.Error
	for _, p := range paths {
		if err := s.mounts[p].Unmount(); err != nil {
			s.logger.Error("unmount failed",
				zap.String("mount_point", p),
				zap.String("code", string(errors.ErrCodeUnmountFailed)),
				zap.Error(err))
			result = multierror.Append(result, unmountFailed(p, err))
		} else {
			s.logger.Info("unmounted", zap.String("mount_point", p))
		}
		delete(s.mounts, p)
	}

	return result.ErrorOrNil()
}

func unmountFailed(mountPath string, cause error) *errors.Error {
	return errors.Wrap(cause, errors.ErrCodeUnmountFailed, "failed to unmount").
		WithComponent("session").
		WithContext("mount_point", mountPath)
}
