//go:build bazil && !cgofuse
// +build bazil,!cgofuse

package fuse

import "go.uber.org/zap"

// BindingName names the kernel binding compiled into this build.
const BindingName = "bazil"

// NewPlatformMount creates the bazil.org/fuse mount manager
func NewPlatformMount(ops Operations, mountPoint string, opts *MountOptions, logger *zap.Logger) PlatformMount {
	return NewBazilMountManager(NewBazilFS(ops, opts, logger), mountPoint, opts, logger)
}
