// Package static serves a fixed set of in-memory files through routefs
// handlers. Directories are implied by the file paths.
package static

import (
	"path"
	"sort"
	"time"

	"github.com/routefs/routefs/pkg/types"
	"github.com/routefs/routefs/pkg/utils"
)

// Pattern is the route a Source answers.
const Pattern = "/:path*"

// Source is an immutable file tree.
type Source struct {
	files    map[string][]byte
	children map[string]map[string]bool // dir -> child names
	dirMode  uint32
	modTime  time.Time
}

// New builds a Source from absolute file paths to their content.
func New(files map[string]string, dirMode uint32, modTime time.Time) *Source {
	if dirMode == 0 {
		dirMode = 0o755
	}
	s := &Source{
		files:    make(map[string][]byte, len(files)),
		children: map[string]map[string]bool{"/": {}},
		dirMode:  dirMode,
		modTime:  modTime,
	}

	for p, content := range files {
		p = utils.CleanPath(p)
		if p == "/" {
			continue
		}
		s.files[p] = []byte(content)

		for child := p; child != "/"; child = path.Dir(child) {
			dir := path.Dir(child)
			if s.children[dir] == nil {
				s.children[dir] = make(map[string]bool)
			}
			s.children[dir][path.Base(child)] = true
		}
	}
	return s
}

// Listing answers directories of the tree and defers every other path.
func (s *Source) Listing() types.ListingHandler {
	return func(req *types.Request, res types.ListingResponse, next types.NextFunc) {
		dir := utils.CleanPath(req.Path)
		names, ok := s.children[dir]
		if !ok {
			next()
			return
		}

		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)

		entries := make([]types.Entry, 0, len(sorted))
		for _, name := range sorted {
			child := utils.JoinPath(dir, name)
			var entry types.Entry
			if content, isFile := s.files[child]; isFile {
				entry = types.File(name, uint64(len(content)))
			} else {
				entry = types.Name(name).WithMode(types.ModeDir | s.dirMode)
			}
			if !s.modTime.IsZero() {
				entry = entry.WithTimes(s.modTime)
			}
			entries = append(entries, entry)
		}
		res.Send(entries)
	}
}

// Read answers files of the tree and defers every other path.
func (s *Source) Read() types.ReadHandler {
	return func(req *types.Request, res types.ReadResponse, next types.NextFunc) {
		content, ok := s.files[utils.CleanPath(req.Path)]
		if !ok {
			next()
			return
		}
		res.Send(content)
	}
}

// Paths returns the file paths in lexical order.
func (s *Source) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// IsDir reports whether p is a directory of the tree.
func (s *Source) IsDir(p string) bool {
	_, ok := s.children[utils.CleanPath(p)]
	return ok
}
