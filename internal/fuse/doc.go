/*
Package fuse mounts an Operations table through a kernel FUSE binding.

The package bridges the kernel's fixed operation contract to the route
dispatcher:

	┌─────────────────────────────────────────────┐
	│              User Applications              │
	│               (ls, cat, less)               │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Kernel VFS Layer / FUSE Driver        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│             routefs FUSE Layer              │  ← This Package
	│  ┌─────────┐  ┌─────────┐  ┌─────────────┐  │
	│  │ go-fuse │  │ cgofuse │  │ bazil/fuse  │  │
	│  └─────────┘  └─────────┘  └─────────────┘  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Operations (route dispatcher)        │
	│  readdir  getattr  open  read  release      │
	└─────────────────────────────────────────────┘

# Platform Support

One binding is compiled in, selected by build tag:

	go build ./...                // github.com/hanwen/go-fuse/v2 (Linux, macOS)
	go build -tags cgofuse ./...  // github.com/winfsp/cgofuse (macOS, Windows, Linux)
	go build -tags bazil ./...    // bazil.org/fuse (Linux, FreeBSD)

NewPlatformMount returns the PlatformMount of the compiled binding and
BindingName names it. Mount returns only after the binding confirmed the
mount: go-fuse answers the kernel's init before fs.Mount returns, cgofuse
calls Init, and bazil asks the filesystem for its root.

# Node Semantics

Directory listings go through ReadDir. The node-based bindings add their own
"." and ".." entries, so the ones produced by the dispatcher are dropped;
cgofuse passes them through. Lookups never run handlers: a child exists only
if a listing of its parent cached its attributes. Files are read-only. Opening
for write fails with EROFS, and reads use direct I/O by default so the kernel
reads the produced content to its end whatever size the listing reported.

# Configuration

	opts := fuse.DefaultMountOptions()
	opts.AllowOther = true
	opts.AttrTimeout = 5 * time.Second

	mount := fuse.NewPlatformMount(dispatcher, "/mnt/routefs", opts, logger)
	if err := mount.Mount(ctx); err != nil {
		return err
	}
	defer mount.Unmount()
*/
package fuse
