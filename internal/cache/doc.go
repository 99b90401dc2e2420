/*
Package cache holds the per-mount state the dispatcher derives while answering
kernel requests.

# Attribute Cache

AttributeCache maps an absolute path to the attribute record reported for it
by the most recent directory listing of its parent:

	/docs listed -> ["a.txt", {name: "b.txt", size: 42}]

	/docs/a.txt  -> size 100, mode 0100644, nlink 1, owner, now
	/docs/b.txt  -> size 42,  mode 0100644, nlink 1, owner, now

Attribute lookups only ever read this map, so a path is visible to getattr
only after its directory has been listed. Entries are never evicted.

# Open File Table

OpenFileTable follows each descriptor through

	closed -> open -> materialized -> closed

Open allocates the descriptor, Materialize runs the content producer at most
once, ReadAt serves byte ranges from the cached content, and Release drops
the descriptor. Descriptors are allocated from a counter starting at 0 and
are never reused while the process runs.

Both structures are safe for concurrent use.
*/
package cache
