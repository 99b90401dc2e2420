package cache

import (
	"os"
	"path"
	"sync"
	"time"

	"github.com/routefs/routefs/pkg/types"
)

// Default attribute values applied to listing entries that omit them.
const (
	DefaultSize     uint64 = 100
	DefaultNlink    uint32 = 1
	DefaultFileMode uint32 = 0o644
	DefaultDirMode  uint32 = 0o755
)

// Defaults holds the values BuildAttributes fills in for omitted fields.
type Defaults struct {
	UID      uint32
	GID      uint32
	Size     uint64
	Nlink    uint32
	FileMode uint32 // permission bits; the regular-file type bit is added
	Now      func() time.Time
}

// NewDefaults returns the standard defaults owned by the current process.
func NewDefaults() Defaults {
	return Defaults{
		UID:      processID(os.Getuid()),
		GID:      processID(os.Getgid()),
		Size:     DefaultSize,
		Nlink:    DefaultNlink,
		FileMode: DefaultFileMode,
		Now:      time.Now,
	}
}

func (d Defaults) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// BuildAttributes merges partial over the defaults field by field.
func BuildAttributes(d Defaults, partial types.PartialAttributes) types.Attributes {
	now := d.now()
	attrs := types.Attributes{
		Mtime: now,
		Atime: now,
		Ctime: now,
		Nlink: d.Nlink,
		Size:  d.Size,
		Mode:  types.ModeRegular | d.FileMode,
		UID:   d.UID,
		GID:   d.GID,
	}

	if partial.Mtime != nil {
		attrs.Mtime = *partial.Mtime
	}
	if partial.Atime != nil {
		attrs.Atime = *partial.Atime
	}
	if partial.Ctime != nil {
		attrs.Ctime = *partial.Ctime
	}
	if partial.Nlink != nil {
		attrs.Nlink = *partial.Nlink
	}
	if partial.Size != nil {
		attrs.Size = *partial.Size
	}
	if partial.Mode != nil {
		attrs.Mode = *partial.Mode
	}
	if partial.UID != nil {
		attrs.UID = *partial.UID
	}
	if partial.GID != nil {
		attrs.GID = *partial.GID
	}
	return attrs
}

// RootAttributes describes the mount root: a readable directory.
func RootAttributes(d Defaults) types.Attributes {
	now := d.now()
	return types.Attributes{
		Mtime: now,
		Atime: now,
		Ctime: now,
		Nlink: DefaultNlink,
		Size:  DefaultSize,
		Mode:  types.ModeDir | DefaultDirMode,
		UID:   d.UID,
		GID:   d.GID,
	}
}

// AttributeCache maps absolute paths to the attributes reported by the
// latest directory listing that contained them. Entries live as long as
// the mount; a later listing overwrites them.
type AttributeCache struct {
	mu    sync.RWMutex
	items map[string]types.Attributes
}

// NewAttributeCache creates an empty cache
func NewAttributeCache() *AttributeCache {
	return &AttributeCache{
		items: make(map[string]types.Attributes),
	}
}

// Set records attrs for p.
func (c *AttributeCache) Set(p string, attrs types.Attributes) {
	c.mu.Lock()
	c.items[path.Clean(p)] = attrs
	c.mu.Unlock()
}

// Get returns the cached attributes for p.
func (c *AttributeCache) Get(p string) (types.Attributes, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	attrs, ok := c.items[path.Clean(p)]
	return attrs, ok
}

// Len returns the number of cached paths.
func (c *AttributeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// processID maps an unavailable id (-1 on platforms without one) to 0.
func processID(id int) uint32 {
	if id < 0 || int64(id) > 0xFFFFFFFF {
		return 0
	}
	return uint32(id)
}
