/*
Package types defines the data model shared by the routefs dispatcher, its
kernel bindings and application handlers.

# Handlers

Application code answers filesystem operations with handlers bound to route
patterns. A handler receives the Request, a Response handle typed by the
operation, and a NextFunc:

	func(req *types.Request, res types.ListingResponse, next types.NextFunc) {
		if req.Param("user") == "" {
			next()
			return
		}
		res.Send([]types.Entry{
			types.Name("profile.json"),
			types.File("avatar.png", 2048),
		})
	}

Every handler must eventually call Send or next exactly once. A handler that
does neither leaves the kernel request waiting forever.

# Attributes

Directory entries may carry PartialAttributes. Fields left nil are filled in
from the mount defaults (size 100, regular file mode 0644, process owner, now)
when the listing is sent, and the merged record is what later getattr calls
report for that path.

# Status codes

Status values follow the binding convention: zero or positive is success,
negative is a POSIX error number such as StatusNotFound.
*/
package types
