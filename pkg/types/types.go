package types

import (
	"context"
	"syscall"
	"time"
)

// Operation identifies the filesystem operation a route answers.
type Operation string

const (
	// OpReadDir lists the children of a directory path.
	OpReadDir Operation = "readdir"
	// OpRead produces the content of a file path.
	OpRead Operation = "read"
)

// Kernel operations answered without routes of their own. They label logs
// and metrics only and cannot be registered.
const (
	OpGetattr Operation = "getattr"
	OpOpen    Operation = "open"
	OpRelease Operation = "release"
)

// Operations lists every operation a route may be registered for.
var Operations = []Operation{OpReadDir, OpRead}

// Valid reports whether op is a known operation kind.
func (op Operation) Valid() bool {
	return op == OpReadDir || op == OpRead
}

// String returns the operation name
func (op Operation) String() string {
	return string(op)
}

// Status codes follow the binding convention: zero or positive is success,
// negative is a POSIX error number.
const (
	StatusOK       = 0
	StatusNotFound = -int(syscall.ENOENT)
	StatusIO       = -int(syscall.EIO)
	StatusBadFD    = -int(syscall.EBADF)
	StatusAccess   = -int(syscall.EACCES)
	StatusTooLarge = -int(syscall.EFBIG)
)

// Mode bits used by attribute records.
const (
	ModeDir     uint32 = syscall.S_IFDIR
	ModeRegular uint32 = syscall.S_IFREG
	ModeType    uint32 = syscall.S_IFMT
)

// Params maps each named pattern segment to the substring it captured.
type Params map[string]string

// Request describes one dispatched operation.
type Request struct {
	Operation Operation
	Path      string
	Params    Params

	ctx context.Context
}

// NewRequest builds a request bound to ctx.
func NewRequest(ctx context.Context, op Operation, path string, params Params) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Request{
		Operation: op,
		Path:      path,
		Params:    params,
		ctx:       ctx,
	}
}

// Context returns the context of the kernel request being answered.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Param returns the named parameter, or "" when absent.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Attributes is a fully populated attribute record.
type Attributes struct {
	Mtime time.Time `json:"mtime"`
	Atime time.Time `json:"atime"`
	Ctime time.Time `json:"ctime"`
	Nlink uint32    `json:"nlink"`
	Size  uint64    `json:"size"`
	Mode  uint32    `json:"mode"`
	UID   uint32    `json:"uid"`
	GID   uint32    `json:"gid"`
}

// IsDir reports whether the record describes a directory.
func (a Attributes) IsDir() bool {
	return a.Mode&ModeType == ModeDir
}

// PartialAttributes carries the attribute fields a handler chose to set.
// Nil fields take their defaults.
type PartialAttributes struct {
	Mtime *time.Time
	Atime *time.Time
	Ctime *time.Time
	Nlink *uint32
	Size  *uint64
	Mode  *uint32
	UID   *uint32
	GID   *uint32
}

// Entry is one directory listing entry: a name with optional attributes.
type Entry struct {
	Name  string
	Attrs PartialAttributes
}

// Name returns an entry carrying only a name.
func Name(name string) Entry {
	return Entry{Name: name}
}

// Names converts bare names into entries.
func Names(names ...string) []Entry {
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, Name(name))
	}
	return entries
}

// File returns an entry for a regular file of the given size.
func File(name string, size uint64) Entry {
	return Name(name).WithSize(size)
}

// Dir returns an entry for a directory with mode 0755.
func Dir(name string) Entry {
	return Name(name).WithMode(ModeDir | 0o755)
}

// WithSize sets the size field.
func (e Entry) WithSize(size uint64) Entry {
	e.Attrs.Size = &size
	return e
}

// WithMode sets the mode field including the file type bits.
func (e Entry) WithMode(mode uint32) Entry {
	e.Attrs.Mode = &mode
	return e
}

// WithNlink sets the link count.
func (e Entry) WithNlink(nlink uint32) Entry {
	e.Attrs.Nlink = &nlink
	return e
}

// WithOwner sets uid and gid.
func (e Entry) WithOwner(uid, gid uint32) Entry {
	e.Attrs.UID = &uid
	e.Attrs.GID = &gid
	return e
}

// WithMtime sets the modification time.
func (e Entry) WithMtime(t time.Time) Entry {
	e.Attrs.Mtime = &t
	return e
}

// WithAtime sets the access time.
func (e Entry) WithAtime(t time.Time) Entry {
	e.Attrs.Atime = &t
	return e
}

// WithCtime sets the change time.
func (e Entry) WithCtime(t time.Time) Entry {
	e.Attrs.Ctime = &t
	return e
}

// WithTimes sets mtime, atime and ctime to t.
func (e Entry) WithTimes(t time.Time) Entry {
	return e.WithMtime(t).WithAtime(t).WithCtime(t)
}
