package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routefs/routefs/internal/cache"
	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/types"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingMetrics struct {
	mu        sync.Mutex
	ops       map[string]int
	failures  map[string]int
	fallbacks map[string]int
	panics    map[string]int
	open      int
	cached    int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		ops:       make(map[string]int),
		failures:  make(map[string]int),
		fallbacks: make(map[string]int),
		panics:    make(map[string]int),
	}
}

func (m *recordingMetrics) RecordOperation(op string, _ time.Duration, _ int64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
	if !success {
		m.failures[op]++
	}
}

func (m *recordingMetrics) RecordFallback(op string) {
	m.mu.Lock()
	m.fallbacks[op]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordHandlerPanic(route string) {
	m.mu.Lock()
	m.panics[route]++
	m.mu.Unlock()
}

func (m *recordingMetrics) UpdateOpenDescriptors(n int) {
	m.mu.Lock()
	m.open = n
	m.mu.Unlock()
}

func (m *recordingMetrics) UpdateCachedAttributes(n int) {
	m.mu.Lock()
	m.cached = n
	m.mu.Unlock()
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingMetrics) {
	t.Helper()
	defaults := cache.NewDefaults()
	defaults.UID = 501
	defaults.GID = 20
	defaults.Now = func() time.Time { return testNow }

	metrics := newRecordingMetrics()
	return New(Options{Metrics: metrics, Defaults: &defaults}), metrics
}

func sendString(s string) types.ReadHandler {
	return func(_ *types.Request, res types.ReadResponse, _ types.NextFunc) {
		res.Send([]byte(s))
	}
}

func readAll(t *testing.T, d *Dispatcher, path string) (int, string) {
	t.Helper()
	fd, status := d.Open(context.Background(), path)
	if status < 0 {
		return status, ""
	}
	defer d.Release(path, fd)

	buf := make([]byte, 4096)
	n := d.Read(context.Background(), path, fd, buf, 0)
	if n < 0 {
		return n, ""
	}
	return n, string(buf[:n])
}

func TestRegisterValidation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	noop := func(*types.Request, types.ListingResponse, types.NextFunc) {}

	t.Run("invalid route", func(t *testing.T) {
		err := d.RegisterListing("/docs/:", noop)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeRouteInvalid))
	})

	t.Run("nil handler", func(t *testing.T) {
		err := d.RegisterRead("/docs", nil)
		assert.True(t, errors.HasCode(err, errors.ErrCodeRouteInvalid))
	})

	t.Run("signature mismatch", func(t *testing.T) {
		err := d.Register("/docs", types.OpRead, noop)
		assert.True(t, errors.HasCode(err, errors.ErrCodeRouteInvalid))
	})

	t.Run("unknown operation", func(t *testing.T) {
		err := d.Register("/docs", types.Operation("write"), noop)
		assert.True(t, errors.HasCode(err, errors.ErrCodeRouteInvalid))
	})

	t.Run("generic register", func(t *testing.T) {
		require.NoError(t, d.Register("/a", types.OpReadDir, noop))
		require.NoError(t, d.Register("/b", types.OpRead, sendString("b")))
		var listing types.ListingHandler = noop
		require.NoError(t, d.Register("/c", types.OpReadDir, listing))
		assert.Equal(t, []string{"readdir /a", "read /b", "readdir /c"}, d.Routes())
	})
}

func TestLastRegisteredRunsFirst(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var order []string

	require.NoError(t, d.RegisterListing("/docs", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		order = append(order, "first")
		res.Send(types.Names("from-first"))
	}))
	require.NoError(t, d.RegisterListing("/:dir", func(req *types.Request, res types.ListingResponse, next types.NextFunc) {
		order = append(order, "second")
		if req.Param("dir") == "docs" {
			next()
			return
		}
		res.Send(types.Names("from-second"))
	}))

	status, names := d.ReadDir(context.Background(), "/docs")
	assert.Equal(t, types.StatusOK, status)
	assert.Equal(t, []string{".", "..", "from-first"}, names)
	assert.Equal(t, []string{"second", "first"}, order)

	order = nil
	_, names = d.ReadDir(context.Background(), "/other")
	assert.Equal(t, []string{".", "..", "from-second"}, names)
	assert.Equal(t, []string{"second"}, order, "earlier handler runs only after next")
}

func TestFallback(t *testing.T) {
	t.Run("no listing route", func(t *testing.T) {
		d, metrics := newTestDispatcher(t)
		status, names := d.ReadDir(context.Background(), "/nothing")
		assert.Equal(t, types.StatusOK, status)
		assert.Equal(t, []string{".", ".."}, names)
		assert.Equal(t, 1, metrics.fallbacks["readdir"])
	})

	t.Run("every listing handler defers", func(t *testing.T) {
		d, _ := newTestDispatcher(t)
		var calls int
		for i := 0; i < 3; i++ {
			require.NoError(t, d.RegisterListing("/docs", func(_ *types.Request, res types.ListingResponse, next types.NextFunc) {
				calls++
				res.Status(types.StatusAccess)
				next()
			}))
		}
		status, names := d.ReadDir(context.Background(), "/docs")
		assert.Equal(t, types.StatusOK, status, "fallback ignores statuses set by deferring handlers")
		assert.Equal(t, []string{".", ".."}, names)
		assert.Equal(t, 3, calls)
	})

	t.Run("every read handler defers", func(t *testing.T) {
		d, _ := newTestDispatcher(t)
		require.NoError(t, d.RegisterRead("/f", func(_ *types.Request, _ types.ReadResponse, next types.NextFunc) {
			next()
		}))
		status, _ := readAll(t, d, "/f")
		assert.Equal(t, types.StatusNotFound, status)
	})
}

func TestNextIsIdempotent(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var firstCalls int32
	require.NoError(t, d.RegisterListing("/docs", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		atomic.AddInt32(&firstCalls, 1)
		res.Send(types.Names("a"))
	}))
	require.NoError(t, d.RegisterListing("/docs", func(_ *types.Request, _ types.ListingResponse, next types.NextFunc) {
		next()
		next()
	}))

	_, names := d.ReadDir(context.Background(), "/docs")
	assert.Equal(t, []string{".", "..", "a"}, names)
	assert.Equal(t, int32(1), firstCalls)
}

func TestStatusAndSend(t *testing.T) {
	d, _ := newTestDispatcher(t)

	require.NoError(t, d.RegisterListing("/denied", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		res.Status(types.StatusNotFound).Status(types.StatusAccess).Send(nil)
	}))
	require.NoError(t, d.RegisterListing("/twice", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		res.Send(types.Names("one"))
		res.Status(types.StatusAccess).Send(types.Names("two"))
	}))

	status, names := d.ReadDir(context.Background(), "/denied")
	assert.Equal(t, types.StatusAccess, status, "last status before send wins")
	assert.Equal(t, []string{".", ".."}, names)

	status, names = d.ReadDir(context.Background(), "/twice")
	assert.Equal(t, types.StatusOK, status)
	assert.Equal(t, []string{".", "..", "one"}, names, "second send is ignored")
	_, ok := d.Attributes().Get("/twice/two")
	assert.False(t, ok)
}

func TestAsyncSend(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.NoError(t, d.RegisterListing("/slow", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			res.Send(types.Names("late"))
		}()
	}))
	require.NoError(t, d.RegisterRead("/slow/:name", func(req *types.Request, res types.ReadResponse, _ types.NextFunc) {
		go res.Send([]byte(req.Param("name")))
	}))

	status, names := d.ReadDir(context.Background(), "/slow")
	assert.Equal(t, types.StatusOK, status)
	assert.Equal(t, []string{".", "..", "late"}, names)

	n, content := readAll(t, d, "/slow/late")
	assert.Equal(t, 4, n)
	assert.Equal(t, "late", content)
}

func TestHandlerPanic(t *testing.T) {
	d, metrics := newTestDispatcher(t)
	require.NoError(t, d.RegisterListing("/boom", func(*types.Request, types.ListingResponse, types.NextFunc) {
		panic("listing exploded")
	}))
	require.NoError(t, d.RegisterRead("/boom", func(*types.Request, types.ReadResponse, types.NextFunc) {
		panic("read exploded")
	}))
	require.NoError(t, d.RegisterRead("/sent", sendString("ok")))
	require.NoError(t, d.RegisterRead("/sent", func(_ *types.Request, res types.ReadResponse, next types.NextFunc) {
		next()
		panic("after the reply")
	}))

	status, names := d.ReadDir(context.Background(), "/boom")
	assert.Equal(t, types.StatusIO, status)
	assert.Equal(t, []string{".", ".."}, names)

	status, _ = readAll(t, d, "/boom")
	assert.Equal(t, types.StatusIO, status)

	n, content := readAll(t, d, "/sent")
	assert.Equal(t, 2, n)
	assert.Equal(t, "ok", content, "a panic after the reply does not change it")

	assert.Equal(t, 2, metrics.panics["/boom"])
	assert.Equal(t, 1, metrics.panics["/sent"])
}

func TestListingPopulatesAttributeCache(t *testing.T) {
	d, metrics := newTestDispatcher(t)
	mtime := testNow.Add(-24 * time.Hour)
	require.NoError(t, d.RegisterListing("/docs", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		res.Send([]types.Entry{
			types.Name("a.txt"),
			types.File("b.txt", 42),
			types.Dir("sub").WithMtime(mtime),
		})
	}))

	status, names := d.ReadDir(context.Background(), "/docs/")
	require.Equal(t, types.StatusOK, status)
	assert.Equal(t, []string{".", "..", "a.txt", "b.txt", "sub"}, names)

	b, ok := d.Attributes().Get("/docs/b.txt")
	require.True(t, ok)
	assert.Equal(t, types.Attributes{
		Mtime: testNow,
		Atime: testNow,
		Ctime: testNow,
		Nlink: 1,
		Size:  42,
		Mode:  types.ModeRegular | 0o644,
		UID:   501,
		GID:   20,
	}, b)

	a, status := d.Getattr("/docs/a.txt")
	require.Equal(t, types.StatusOK, status)
	assert.Equal(t, uint64(100), a.Size)

	sub, status := d.Getattr("/docs/sub")
	require.Equal(t, types.StatusOK, status)
	assert.True(t, sub.IsDir())
	assert.Equal(t, mtime, sub.Mtime)

	assert.Equal(t, 3, metrics.cached)
}

func TestListingDropsEntriesOutsideDirectory(t *testing.T) {
	d, metrics := newTestDispatcher(t)
	require.NoError(t, d.RegisterListing("/docs", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		res.Send([]types.Entry{
			types.Name(""),
			types.Name("../x"),
			types.Name("nested/y"),
			types.Name("."),
			types.Name("a"),
		})
	}))
	require.NoError(t, d.RegisterListing("/", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		res.Send([]types.Entry{types.Dir("docs")})
	}))

	status, names := d.ReadDir(context.Background(), "/")
	require.Equal(t, types.StatusOK, status)
	assert.Equal(t, []string{".", "..", "docs"}, names)

	status, names = d.ReadDir(context.Background(), "/docs")
	require.Equal(t, types.StatusOK, status)
	assert.Equal(t, []string{".", "..", "a"}, names)

	docs, status := d.Getattr("/docs")
	require.Equal(t, types.StatusOK, status)
	assert.True(t, docs.IsDir(), "an empty name must not overwrite the directory itself")

	_, status = d.Getattr("/x")
	assert.Equal(t, types.StatusNotFound, status)
	_, status = d.Getattr("/docs/nested/y")
	assert.Equal(t, types.StatusNotFound, status)

	assert.Equal(t, 2, d.Attributes().Len())
	assert.Equal(t, 2, metrics.cached)
}

func TestGetattr(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var listed int32
	require.NoError(t, d.RegisterListing("/docs", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		atomic.AddInt32(&listed, 1)
		res.Send(types.Names("a.txt"))
	}))

	t.Run("root is always a directory", func(t *testing.T) {
		attrs, status := d.Getattr("/")
		require.Equal(t, types.StatusOK, status)
		assert.Equal(t, types.ModeDir|0o755, attrs.Mode)
		assert.Equal(t, uint32(1), attrs.Nlink)
		assert.Equal(t, uint64(100), attrs.Size)
		assert.Equal(t, uint32(501), attrs.UID)
		assert.Equal(t, testNow, attrs.Mtime)
	})

	t.Run("unlisted path is not found", func(t *testing.T) {
		_, status := d.Getattr("/docs/a.txt")
		assert.Equal(t, types.StatusNotFound, status)
		assert.Equal(t, int32(0), atomic.LoadInt32(&listed), "getattr never runs handlers")
	})

	t.Run("listed path is found", func(t *testing.T) {
		d.ReadDir(context.Background(), "/docs")
		_, status := d.Getattr("/docs/a.txt")
		assert.Equal(t, types.StatusOK, status)
	})
}

func TestOpen(t *testing.T) {
	d, metrics := newTestDispatcher(t)
	var produced int32
	require.NoError(t, d.RegisterRead("/docs/:file", func(_ *types.Request, res types.ReadResponse, _ types.NextFunc) {
		atomic.AddInt32(&produced, 1)
		res.Send([]byte("x"))
	}))

	t.Run("unmatched path allocates no descriptor", func(t *testing.T) {
		_, status := d.Open(context.Background(), "/other")
		assert.Equal(t, types.StatusNotFound, status)
		assert.Equal(t, uint64(0), d.Files().Next())
		assert.Equal(t, 1, metrics.fallbacks["open"])
	})

	t.Run("listing routes do not make a path openable", func(t *testing.T) {
		require.NoError(t, d.RegisterListing("/dir", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
			res.Send(nil)
		}))
		_, status := d.Open(context.Background(), "/dir")
		assert.Equal(t, types.StatusNotFound, status)
	})

	t.Run("matched path allocates sequential descriptors", func(t *testing.T) {
		fd0, status := d.Open(context.Background(), "/docs/a.txt")
		require.Equal(t, types.StatusOK, status)
		fd1, status := d.Open(context.Background(), "/docs/b.txt")
		require.Equal(t, types.StatusOK, status)

		assert.Equal(t, uint64(0), fd0)
		assert.Equal(t, uint64(1), fd1)
		assert.Equal(t, int32(0), atomic.LoadInt32(&produced), "open runs no handler")
		assert.False(t, d.Files().Materialized(fd0))
		assert.Equal(t, 2, metrics.open)
	})
}

func TestReadMaterializesOnce(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var calls int32
	require.NoError(t, d.RegisterRead("/docs/:file", func(req *types.Request, res types.ReadResponse, _ types.NextFunc) {
		atomic.AddInt32(&calls, 1)
		res.Send([]byte("0123456789"))
	}))

	fd, status := d.Open(context.Background(), "/docs/a.txt")
	require.Equal(t, types.StatusOK, status)

	whole := make([]byte, 10)
	head := make([]byte, 4)
	tail := make([]byte, 6)
	assert.Equal(t, 4, d.Read(context.Background(), "/docs/a.txt", fd, head, 0))
	assert.Equal(t, 6, d.Read(context.Background(), "/docs/a.txt", fd, tail, 4))
	assert.Equal(t, 10, d.Read(context.Background(), "/docs/a.txt", fd, whole, 0))

	assert.Equal(t, string(whole), string(head)+string(tail))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	t.Run("a second descriptor produces again", func(t *testing.T) {
		fd2, _ := d.Open(context.Background(), "/docs/a.txt")
		assert.Equal(t, 10, d.Read(context.Background(), "/docs/a.txt", fd2, whole, 0))
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}

func TestConcurrentReadsShareOneProduction(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var calls int32
	require.NoError(t, d.RegisterRead("/big", func(_ *types.Request, res types.ReadResponse, _ types.NextFunc) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		res.Send([]byte("payload"))
	}))

	fd, status := d.Open(context.Background(), "/big")
	require.Equal(t, types.StatusOK, status)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(off int64) {
			defer wg.Done()
			buf := make([]byte, 1)
			assert.Equal(t, 1, d.Read(context.Background(), "/big", fd, buf, off%7))
		}(int64(i))
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReadHandlerStatusIsPropagated(t *testing.T) {
	d, metrics := newTestDispatcher(t)
	var calls int32
	require.NoError(t, d.RegisterRead("/secret", func(_ *types.Request, res types.ReadResponse, _ types.NextFunc) {
		if atomic.AddInt32(&calls, 1) == 1 {
			res.Status(types.StatusAccess).Send([]byte("ignored"))
			return
		}
		res.Send([]byte("granted"))
	}))

	fd, status := d.Open(context.Background(), "/secret")
	require.Equal(t, types.StatusOK, status)

	buf := make([]byte, 16)
	assert.Equal(t, types.StatusAccess, d.Read(context.Background(), "/secret", fd, buf, 0))
	assert.False(t, d.Files().Materialized(fd))
	assert.Equal(t, 1, metrics.failures["read"])

	n := d.Read(context.Background(), "/secret", fd, buf, 0)
	assert.Equal(t, 7, n, "a failed production is retried")
	assert.Equal(t, "granted", string(buf[:n]))
}

func TestReleaseAndStaleDescriptors(t *testing.T) {
	d, metrics := newTestDispatcher(t)
	require.NoError(t, d.RegisterRead("/f", sendString("content")))

	fd, _ := d.Open(context.Background(), "/f")
	buf := make([]byte, 7)
	require.Equal(t, 7, d.Read(context.Background(), "/f", fd, buf, 0))

	assert.Equal(t, types.StatusOK, d.Release("/f", fd))
	assert.Equal(t, 0, d.Files().Len())
	assert.Equal(t, 0, metrics.open)

	assert.Equal(t, types.StatusBadFD, d.Read(context.Background(), "/f", fd, buf, 0))
	assert.Equal(t, types.StatusOK, d.Release("/f", fd), "release always succeeds")
	assert.Equal(t, types.StatusBadFD, d.Read(context.Background(), "/f", 99, buf, 0))
}

func TestSentContentIsCopied(t *testing.T) {
	d, _ := newTestDispatcher(t)
	shared := []byte("abc")
	require.NoError(t, d.RegisterRead("/f", func(_ *types.Request, res types.ReadResponse, _ types.NextFunc) {
		res.Send(shared)
		shared[0] = 'z'
	}))

	fd, _ := d.Open(context.Background(), "/f")
	buf := make([]byte, 3)
	require.Equal(t, 3, d.Read(context.Background(), "/f", fd, buf, 0))
	assert.Equal(t, "abc", string(buf))
}

func TestParamsAndContextReachHandlers(t *testing.T) {
	d, _ := newTestDispatcher(t)
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "kernel")

	var got types.Params
	var fromCtx any
	require.NoError(t, d.RegisterListing("/users/:user", func(req *types.Request, res types.ListingResponse, _ types.NextFunc) {
		got = req.Params
		fromCtx = req.Context().Value(ctxKey{})
		assert.Equal(t, types.OpReadDir, req.Operation)
		assert.Equal(t, "/users/ada", req.Path)
		res.Send(nil)
	}))

	d.ReadDir(ctx, "/users/ada")
	assert.Equal(t, types.Params{"user": "ada"}, got)
	assert.Equal(t, "kernel", fromCtx)
}

func TestEndToEndDocs(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.NoError(t, d.RegisterListing("/docs", func(_ *types.Request, res types.ListingResponse, _ types.NextFunc) {
		res.Send([]types.Entry{types.Name("a.txt"), types.File("b.txt", 42)})
	}))
	require.NoError(t, d.RegisterRead("/docs/:file", sendString("hello")))

	status, names := d.ReadDir(context.Background(), "/docs")
	require.Equal(t, types.StatusOK, status)
	assert.Equal(t, []string{".", "..", "a.txt", "b.txt"}, names)

	b, status := d.Getattr("/docs/b.txt")
	require.Equal(t, types.StatusOK, status)
	assert.Equal(t, uint64(42), b.Size)
	assert.Equal(t, uint32(1), b.Nlink)
	assert.Equal(t, types.ModeRegular|0o644, b.Mode)
	assert.Equal(t, testNow, b.Mtime)

	fd, status := d.Open(context.Background(), "/docs/a.txt")
	require.Equal(t, types.StatusOK, status)

	buf := make([]byte, 5)
	assert.Equal(t, 5, d.Read(context.Background(), "/docs/a.txt", fd, buf, 0))
	assert.Equal(t, "hello", string(buf))

	buf = make([]byte, 10)
	n := d.Read(context.Background(), "/docs/a.txt", fd, buf, 3)
	assert.Equal(t, 2, n)
	assert.Equal(t, "lo", string(buf[:n]))

	assert.Equal(t, types.StatusOK, d.Release("/docs/a.txt", fd))
}
