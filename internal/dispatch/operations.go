package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/routefs/routefs/internal/cache"
	"github.com/routefs/routefs/pkg/types"
	"github.com/routefs/routefs/pkg/utils"
)

// Synthetic entries leading every directory listing.
var syntheticEntries = []string{".", ".."}

// ReadDir lists path. The reply always starts with "." and ".."; every
// listed entry is cached under its joined path before ReadDir returns.
func (d *Dispatcher) ReadDir(ctx context.Context, path string) (int, []string) {
	start := time.Now()
	path = utils.CleanPath(path)

	matches := d.matches(path, types.OpReadDir)
	if len(matches) == 0 {
		d.logger.Debug("readdir shortcut", zap.String("path", path))
		d.metrics.RecordFallback(types.OpReadDir.String())
		d.record(types.OpReadDir, start, 0, types.StatusOK)
		return types.StatusOK, append([]string(nil), syntheticEntries...)
	}

	links := make([]link[[]types.Entry], 0, len(matches))
	for _, m := range matches {
		links = append(links, link[[]types.Entry]{
			route:   m.reg.matcher.Route(),
			params:  m.params,
			handler: m.reg.listing,
		})
	}

	r := run(ctx, d, types.OpReadDir, path, links,
		func(res *response[[]types.Entry]) { res.finish(types.StatusOK, nil) },
		func(status int, entries []types.Entry) reply[[]types.Entry] {
			entries = d.validEntries(path, entries)
			d.cacheListing(path, entries)
			return reply[[]types.Entry]{status: status, value: entries}
		})

	names := make([]string, 0, len(syntheticEntries)+len(r.value))
	names = append(names, syntheticEntries...)
	for _, e := range r.value {
		names = append(names, e.Name)
	}

	d.logger.Debug("readdir",
		zap.String("path", path),
		zap.Int("entries", len(r.value)),
		zap.Int("status", r.status))
	d.record(types.OpReadDir, start, int64(len(r.value)), r.status)
	return r.status, names
}

// validEntries drops names that would not stay inside dir.
func (d *Dispatcher) validEntries(dir string, entries []types.Entry) []types.Entry {
	valid := entries[:0:0]
	for _, e := range entries {
		if !utils.IsEntryName(e.Name) {
			d.logger.Warn("dropping invalid listing entry",
				zap.String("path", dir),
				zap.String("name", e.Name))
			continue
		}
		valid = append(valid, e)
	}
	return valid
}

func (d *Dispatcher) cacheListing(dir string, entries []types.Entry) {
	for _, e := range entries {
		d.attrs.Set(utils.JoinPath(dir, e.Name), cache.BuildAttributes(d.defaults, e.Attrs))
	}
	d.metrics.UpdateCachedAttributes(d.attrs.Len())
}

// Getattr answers attribute lookups from the cache only. The root is always
// a directory; other paths are known only once their parent was listed.
func (d *Dispatcher) Getattr(path string) (types.Attributes, int) {
	start := time.Now()
	path = utils.CleanPath(path)

	if path == "/" {
		d.record(types.OpGetattr, start, 0, types.StatusOK)
		return cache.RootAttributes(d.defaults), types.StatusOK
	}

	attrs, ok := d.attrs.Get(path)
	if !ok {
		d.logger.Debug("getattr miss", zap.String("path", path))
		d.record(types.OpGetattr, start, 0, types.StatusNotFound)
		return types.Attributes{}, types.StatusNotFound
	}
	d.record(types.OpGetattr, start, 0, types.StatusOK)
	return attrs, types.StatusOK
}

// Open allocates a descriptor for path if at least one read handler
// matches it. No handler runs; content is produced by the first Read.
// A failed open does not consume a descriptor.
func (d *Dispatcher) Open(ctx context.Context, path string) (uint64, int) {
	start := time.Now()
	path = utils.CleanPath(path)

	if len(d.matches(path, types.OpRead)) == 0 {
		d.logger.Debug("open without read route", zap.String("path", path))
		d.metrics.RecordFallback(types.OpOpen.String())
		d.record(types.OpOpen, start, 0, types.StatusNotFound)
		return 0, types.StatusNotFound
	}

	fd := d.files.Open(path)
	d.metrics.UpdateOpenDescriptors(d.files.Len())
	d.logger.Debug("open", zap.String("path", path), zap.Uint64("fd", fd))
	d.record(types.OpOpen, start, 0, types.StatusOK)
	return fd, types.StatusOK
}

// Read copies content of fd at off into buf and returns the count copied.
// The content is produced by dispatching a read for the opened path the
// first time fd is read; later reads are served from the cached content.
func (d *Dispatcher) Read(ctx context.Context, path string, fd uint64, buf []byte, off int64) int {
	start := time.Now()

	status := d.files.Materialize(fd, func(opened string) ([]byte, int) {
		return d.dispatchRead(ctx, opened)
	})
	if status < 0 {
		d.logger.Debug("read failed",
			zap.String("path", path),
			zap.Uint64("fd", fd),
			zap.Int("status", status))
		d.record(types.OpRead, start, 0, status)
		return status
	}

	n := d.files.ReadAt(fd, buf, off)
	d.record(types.OpRead, start, int64(n), n)
	return n
}

// dispatchRead runs the read chain for path and returns the first reply.
func (d *Dispatcher) dispatchRead(ctx context.Context, path string) ([]byte, int) {
	matches := d.matches(path, types.OpRead)
	if len(matches) == 0 {
		d.metrics.RecordFallback(types.OpRead.String())
		return nil, types.StatusNotFound
	}

	links := make([]link[[]byte], 0, len(matches))
	for _, m := range matches {
		links = append(links, link[[]byte]{
			route:   m.reg.matcher.Route(),
			params:  m.params,
			handler: m.reg.read,
		})
	}

	r := run(ctx, d, types.OpRead, path, links,
		func(res *response[[]byte]) { res.finish(types.StatusNotFound, nil) },
		func(status int, content []byte) reply[[]byte] {
			if status >= 0 {
				// The handler may reuse its slice after Send.
				content = append([]byte(nil), content...)
			}
			return reply[[]byte]{status: status, value: content}
		})

	if r.status < 0 {
		return nil, r.status
	}
	d.logger.Debug("content materialized",
		zap.String("path", path),
		zap.String("size", utils.FormatBytes(len(r.value))))
	return r.value, types.StatusOK
}

// Release forgets fd. It always succeeds.
func (d *Dispatcher) Release(path string, fd uint64) int {
	start := time.Now()
	d.files.Release(fd)
	d.metrics.UpdateOpenDescriptors(d.files.Len())
	d.logger.Debug("release", zap.String("path", path), zap.Uint64("fd", fd))
	d.record(types.OpRelease, start, 0, types.StatusOK)
	return types.StatusOK
}

func (d *Dispatcher) record(op types.Operation, start time.Time, size int64, status int) {
	d.metrics.RecordOperation(op.String(), time.Since(start), size, status >= 0)
}
