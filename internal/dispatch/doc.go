/*
Package dispatch answers kernel filesystem operations with user handlers
selected by route.

Handlers are registered per operation against a path pattern:

	d := dispatch.New(dispatch.Options{Logger: logger})
	d.RegisterListing("/docs", func(req *types.Request, res types.ListingResponse, next types.NextFunc) {
		res.Send([]types.Entry{types.Name("a.txt"), types.File("b.txt", 42)})
	})
	d.RegisterRead("/docs/:file", func(req *types.Request, res types.ReadResponse, next types.NextFunc) {
		res.Send([]byte("hello " + req.Param("file")))
	})

# Handler Chain

All handlers matching a path run as a chain, most recently registered first.
A handler either answers with res.Send or defers to the previously registered
match with next. When every match defers, the fallback answers: an empty
listing (only "." and "..") for readdir and -ENOENT for read.

Only the first Send of a dispatch reaches the kernel. A panicking handler
answers -EIO. A handler that never sends and never calls next leaves the
kernel request waiting; the dispatcher has no timeout.

# Operations

ReadDir caches the attributes of every listed entry, Getattr reads only that
cache, Open checks that a read route exists, Read produces the content once
per descriptor and serves byte ranges from it, and Release drops the
descriptor.
*/
package dispatch
