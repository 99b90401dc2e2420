/*
Package s3 serves an S3 bucket prefix through routefs handlers.

A Source maps mount paths below Root onto object keys below Prefix and
offers one listing and one read handler for a single route:

	client, err := s3.NewClient(ctx, &s3.Config{
		Region:         "us-east-1",
		Endpoint:       "http://localhost:9000",
		ForcePathStyle: true,
	})
	if err != nil {
		return err
	}

	src := &s3.Source{API: client, Bucket: "media", Prefix: "public/", Logger: logger}
	app.Ls(src.Pattern(), src.Listing())
	app.Read(src.Pattern(), src.Read())

# Listing

Listings call ListObjectsV2 with the "/" delimiter and follow continuation
tokens until the prefix is exhausted. Common prefixes become directory
entries with DirMode; objects become file entries carrying their size and
last-modified time. Directory marker objects (keys ending in "/") are
skipped.

# Reading

Reads fetch the whole object with GetObject. The dispatcher materializes
the content once per open descriptor, so chunked kernel reads of one open
file cost a single request.

# Errors

	NoSuchKey, NotFound      -ENOENT
	AccessDenied             -EACCES
	larger than MaxObjectSize -EFBIG
	anything else            -EIO

Paths outside Root, including case variants the case-insensitive route
accepts, call next so a lower-priority handler can answer them.
*/
package s3
