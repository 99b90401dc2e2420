//go:build cgofuse
// +build cgofuse

package fuse

import "go.uber.org/zap"

// BindingName names the kernel binding compiled into this build.
const BindingName = "cgofuse"

// NewPlatformMount creates the cgofuse mount manager
func NewPlatformMount(ops Operations, mountPoint string, opts *MountOptions, logger *zap.Logger) PlatformMount {
	return NewCgoFuseMountManager(NewCgoFuseFS(ops, opts, logger), mountPoint, opts, logger)
}
