package s3

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/types"
	"github.com/routefs/routefs/pkg/utils"
)

const delimiter = "/"

// Source serves a bucket prefix as a read-only tree below Root.
type Source struct {
	API    API
	Bucket string
	// Prefix is the key prefix mapped to Root. A missing trailing
	// delimiter is added.
	Prefix string
	// Root is the mount path the prefix appears under, "/" when empty.
	Root string
	// DirMode holds the permission bits of common-prefix entries.
	DirMode uint32
	// MaxObjectSize rejects larger objects with EFBIG when positive.
	MaxObjectSize int64
	Logger        *zap.Logger
}

// Pattern returns the route covering Root and everything below it.
func (s *Source) Pattern() string {
	root := s.root()
	if root == "/" {
		return "/:key*"
	}
	return root + "/:key*"
}

// Listing returns the directory listing handler.
func (s *Source) Listing() types.ListingHandler {
	logger := s.logger()
	return func(req *types.Request, res types.ListingResponse, next types.NextFunc) {
		prefix, ok := s.keyFor(req.Path)
		if !ok {
			next()
			return
		}
		if prefix != "" {
			prefix += delimiter
		}

		entries, err := s.list(req.Context(), prefix)
		if err != nil {
			status := statusOf(err)
			logger.Warn("list objects failed",
				zap.String("path", req.Path),
				zap.String("prefix", prefix),
				zap.Int("status", status),
				zap.Error(err))
			res.Status(status).Send(nil)
			return
		}

		logger.Debug("listed prefix",
			zap.String("path", req.Path),
			zap.String("prefix", prefix),
			zap.Int("entries", len(entries)))
		res.Send(entries)
	}
}

// Read returns the file content handler.
func (s *Source) Read() types.ReadHandler {
	logger := s.logger()
	return func(req *types.Request, res types.ReadResponse, next types.NextFunc) {
		rel, ok := s.relFor(req.Path)
		if !ok || rel == "" {
			next()
			return
		}
		key := s.keyOf(rel)

		data, err := s.get(req.Context(), key)
		if err != nil {
			status := statusOf(err)
			logger.Warn("get object failed",
				zap.String("path", req.Path),
				zap.String("key", key),
				zap.Int("status", status),
				zap.Error(err))
			res.Status(status).Send(nil)
			return
		}

		logger.Debug("fetched object",
			zap.String("key", key),
			zap.String("size", utils.FormatBytes(len(data))))
		res.Send(data)
	}
}

func (s *Source) list(ctx context.Context, prefix string) ([]types.Entry, error) {
	dirMode := s.DirMode
	if dirMode == 0 {
		dirMode = 0o755
	}

	paginator := s3.NewListObjectsV2Paginator(s.API, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
	})

	var entries []types.Entry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), delimiter)
			if name == "" {
				continue
			}
			entries = append(entries, types.Name(name).WithMode(types.ModeDir|dirMode))
		}

		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			// directory marker objects
			if name == "" || strings.Contains(name, delimiter) {
				continue
			}
			entry := types.File(name, uint64(max(aws.ToInt64(obj.Size), 0)))
			if obj.LastModified != nil {
				entry = entry.WithTimes(*obj.LastModified)
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

func (s *Source) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.API.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	if s.MaxObjectSize <= 0 {
		return io.ReadAll(out.Body)
	}
	if aws.ToInt64(out.ContentLength) > s.MaxObjectSize {
		return nil, errTooLarge
	}

	// ContentLength may be absent, so the body itself is bounded too.
	data, err := io.ReadAll(io.LimitReader(out.Body, s.MaxObjectSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.MaxObjectSize {
		return nil, errTooLarge
	}
	return data, nil
}

// keyFor maps a mount path to its object key. ok is false for paths that
// fall outside Root.
func (s *Source) keyFor(p string) (string, bool) {
	rel, ok := s.relFor(p)
	if !ok {
		return "", false
	}
	return s.keyOf(rel), true
}

// relFor returns p relative to Root, "" for Root itself.
func (s *Source) relFor(p string) (string, bool) {
	p = utils.CleanPath(p)
	root := s.root()

	switch {
	case root == "/":
		return strings.TrimPrefix(p, "/"), true
	case p == root:
		return "", true
	case strings.HasPrefix(p, root+"/"):
		return strings.TrimPrefix(p, root+"/"), true
	default:
		return "", false
	}
}

func (s *Source) keyOf(rel string) string {
	prefix := strings.TrimSuffix(s.Prefix, delimiter)
	switch {
	case prefix == "":
		return rel
	case rel == "":
		return prefix
	default:
		return prefix + delimiter + rel
	}
}

func (s *Source) root() string {
	if s.Root == "" {
		return "/"
	}
	return path.Clean("/" + s.Root)
}

func (s *Source) logger() *zap.Logger {
	return utils.LoggerOrNop(s.Logger).Named("s3").With(zap.String("bucket", s.Bucket))
}

var errTooLarge = errors.New("object exceeds the configured size limit")

// statusOf maps an S3 failure to the kernel status the handler replies with.
func statusOf(err error) int {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return types.StatusNotFound
	}
	if errors.Is(err, errTooLarge) {
		return types.StatusTooLarge
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return types.StatusNotFound
		case "AccessDenied":
			return types.StatusAccess
		}
	}
	return types.StatusIO
}
