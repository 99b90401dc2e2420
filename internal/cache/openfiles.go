package cache

import (
	"sync"

	"github.com/routefs/routefs/pkg/types"
)

// Producer produces the full content of path, or a negative status.
type Producer func(path string) ([]byte, int)

// OpenFileTable maps file descriptors to the content materialized for them.
// Descriptors come from a counter starting at 0 and are never reused.
type OpenFileTable struct {
	mu    sync.Mutex
	next  uint64
	files map[uint64]*openFile
}

// openFile moves from open to materialized once its producer succeeds.
type openFile struct {
	path string

	mu           sync.Mutex
	data         []byte
	materialized bool
}

// NewOpenFileTable creates an empty table
func NewOpenFileTable() *OpenFileTable {
	return &OpenFileTable{
		files: make(map[uint64]*openFile),
	}
}

// Open allocates a descriptor for path.
func (t *OpenFileTable) Open(path string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.next
	t.next++
	t.files[fd] = &openFile{path: path}
	return fd
}

// Next returns the descriptor the next Open will allocate.
func (t *OpenFileTable) Next() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// Path returns the path fd was opened for.
func (t *OpenFileTable) Path(fd uint64) (string, bool) {
	f, ok := t.get(fd)
	if !ok {
		return "", false
	}
	return f.path, true
}

// Materialize runs produce for fd unless its content is already cached.
// Concurrent callers for the same descriptor wait for the first producer;
// a failed production caches nothing and is retried by the next caller.
func (t *OpenFileTable) Materialize(fd uint64, produce Producer) int {
	f, ok := t.get(fd)
	if !ok {
		return types.StatusBadFD
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.materialized {
		return types.StatusOK
	}

	data, status := produce(f.path)
	if status < 0 {
		return status
	}
	f.data = data
	f.materialized = true
	return types.StatusOK
}

// Materialized reports whether fd has cached content.
func (t *OpenFileTable) Materialized(fd uint64) bool {
	f, ok := t.get(fd)
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.materialized
}

// ReadAt copies the cached bytes [off, off+len(buf)) of fd into buf,
// clipped to the content, and returns the count copied.
func (t *OpenFileTable) ReadAt(fd uint64, buf []byte, off int64) int {
	f, ok := t.get(fd)
	if !ok {
		return types.StatusBadFD
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.materialized {
		return types.StatusIO
	}
	if off < 0 || off >= int64(len(f.data)) {
		return 0
	}
	return copy(buf, f.data[off:])
}

// Size returns the length of fd's materialized content.
func (t *OpenFileTable) Size(fd uint64) (int, bool) {
	f, ok := t.get(fd)
	if !ok {
		return 0, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.materialized {
		return 0, false
	}
	return len(f.data), true
}

// Release forgets fd. Releasing an unknown descriptor is a no-op.
func (t *OpenFileTable) Release(fd uint64) {
	t.mu.Lock()
	delete(t.files, fd)
	t.mu.Unlock()
}

// Len returns the number of open descriptors.
func (t *OpenFileTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

func (t *OpenFileTable) get(fd uint64) (*openFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	return f, ok
}
