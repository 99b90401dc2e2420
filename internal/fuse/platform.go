//go:build !cgofuse && !bazil
// +build !cgofuse,!bazil

package fuse

import "go.uber.org/zap"

// BindingName names the kernel binding compiled into this build.
const BindingName = "go-fuse"

// NewPlatformMount creates the mount manager for this build's binding
func NewPlatformMount(ops Operations, mountPoint string, opts *MountOptions, logger *zap.Logger) PlatformMount {
	return NewMountManager(NewFileSystem(ops, opts, logger), mountPoint, opts, logger)
}
