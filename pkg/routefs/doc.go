/*
Package routefs builds read-only filesystems from route handlers.

Handlers are registered per operation against path patterns, the same way
an HTTP router works. The most recently registered matching handler runs
first and may defer to older ones with next:

	app := routefs.New(routefs.Options{Logger: logger})

	app.Ls("/docs", func(req *types.Request, res types.ListingResponse, next types.NextFunc) {
		res.Send([]types.Entry{types.Name("a.txt"), types.File("b.txt", 42)})
	})
	app.Read("/docs/:file", func(req *types.Request, res types.ReadResponse, next types.NextFunc) {
		res.Send([]byte("hello " + req.Param("file")))
	})

	session := routefs.NewSession(logger)
	defer session.Close()
	if err := session.Mount(ctx, "/mnt/docs", app, nil); err != nil {
		return err
	}

Attributes of a path are known only after its parent directory has been
listed; getattr never calls a handler.

A Session owns its mounts. Close unmounts all of them, logging failures
and returning them aggregated, and is safe to call from a signal handler
goroutine more than once. Signal wiring belongs to the host program; see
cmd/routefs.
*/
package routefs
