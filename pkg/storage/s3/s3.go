package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Client is the subset of *s3.Client used by the backend.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ Client = (*s3.Client)(nil)

// Backend implements storage.Backend on Amazon S3 or an S3-compatible store.
//
// Key Layout:
//   - A file "docs/a.txt" is stored at KeyPrefix + "docs/a.txt"
//   - A directory "docs" is a zero-byte marker object at KeyPrefix + "docs/"
//   - A directory without a marker still exists if any key lives below it
//
// S3 has no random access, so every writable open mode is served by a
// storage.WriteBackFile that is uploaded again on Close. Read-only handles
// stream the object and seek with ranged GETs.
//
// Thread Safety:
// Safe for concurrent use. Concurrent writers to the same key follow S3's
// last-write-wins semantics.
type Backend struct {
	client    Client
	bucket    string
	keyPrefix string
	tempDir   string
}

// Config contains configuration for the S3 backend.
type Config struct {
	// Client is the configured S3 client
	Client Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	KeyPrefix string

	// TempDir holds write-back files ("" = os.TempDir())
	TempDir string
}

// New creates an S3 backend and verifies bucket access.
//
// The bucket must already exist.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Backend configuration
//
// Returns:
//   - *Backend: Initialized backend
//   - error: ErrInvalidParameters for missing fields, ErrUnavailable if the
//     bucket cannot be reached
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, storage.Errorf("create", "", storage.ErrInvalidParameters, "S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, storage.Errorf("create", "", storage.ErrInvalidParameters, "bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, storage.NewError("create", cfg.Bucket, storage.ErrUnavailable,
			fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err))
	}

	prefix := strings.Trim(cfg.KeyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &Backend{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
		tempDir:   cfg.TempDir,
	}, nil
}

func (b *Backend) ID() string {
	if b.keyPrefix == "" {
		return "amazon::" + b.bucket
	}
	return "amazon::" + b.bucket + "/" + strings.TrimSuffix(b.keyPrefix, "/")
}

func (b *Backend) resolve(op, p string) (string, error) {
	cp, ok := storage.CleanPath(p)
	if !ok {
		return "", storage.Errorf(op, p, storage.ErrInvalidParameters, "path escapes backend root")
	}
	return cp, nil
}

// objectKey returns the key of a file.
func (b *Backend) objectKey(cp string) string {
	return b.keyPrefix + cp
}

// dirKey returns the listing prefix (and marker key) of a directory.
func (b *Backend) dirKey(cp string) string {
	if cp == "" {
		return b.keyPrefix
	}
	return b.keyPrefix + cp + "/"
}

func (b *Backend) copySource(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return b.bucket + "/" + strings.Join(segments, "/")
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func mapError(op, p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isNotFound(err):
		return storage.NewError(op, p, storage.ErrNotFound, err)
	default:
		return storage.IOError(op, p, err)
	}
}

// lookup finds a path as a file, a directory marker or an implicit directory.
func (b *Backend) lookup(ctx context.Context, cp string) (*storage.FileInfo, error) {
	if cp == "" {
		return &storage.FileInfo{Type: storage.TypeDirectory}, nil
	}

	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(cp)),
	})
	if err == nil {
		return &storage.FileInfo{
			Name:  storage.BaseName(cp),
			Size:  aws.ToInt64(head.ContentLength),
			MTime: aws.ToTime(head.LastModified),
			Type:  storage.TypeFile,
		}, nil
	}
	if !isNotFound(err) {
		return nil, mapError("stat", cp, err)
	}

	marker, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.dirKey(cp)),
	})
	if err == nil {
		return &storage.FileInfo{
			Name:  storage.BaseName(cp),
			MTime: aws.ToTime(marker.LastModified),
			Type:  storage.TypeDirectory,
		}, nil
	}
	if !isNotFound(err) {
		return nil, mapError("stat", cp, err)
	}

	list, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(b.dirKey(cp)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, mapError("stat", cp, err)
	}
	if len(list.Contents) > 0 {
		return &storage.FileInfo{Name: storage.BaseName(cp), Type: storage.TypeDirectory}, nil
	}

	return nil, storage.NewError("stat", cp, storage.ErrNotFound, nil)
}

// requireParent fails with ErrNotFound unless the parent of cp is a directory.
func (b *Backend) requireParent(ctx context.Context, op, cp string) error {
	parent := storage.ParentPath(cp)
	if parent == "" {
		return nil
	}
	info, err := b.lookup(ctx, parent)
	if err != nil {
		return storage.NewError(op, cp, storage.ErrNotFound, err)
	}
	if !info.IsDir() {
		return storage.NewError(op, cp, storage.ErrNotDirectory, nil)
	}
	return nil
}

// listAll returns every key below prefix.
func (b *Backend) listAll(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (b *Backend) deleteKey(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (b *Backend) putObject(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	return err
}

func (b *Backend) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := b.resolve("mkdir", path)
	if err != nil {
		return err
	}

	if _, err := b.lookup(ctx, cp); err == nil {
		return storage.NewError("mkdir", cp, storage.ErrExists, nil)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err := b.requireParent(ctx, "mkdir", cp); err != nil {
		return err
	}

	return mapError("mkdir", cp, b.putObject(ctx, b.dirKey(cp), bytes.NewReader(nil), 0))
}

func (b *Backend) Rmdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := b.resolve("rmdir", path)
	if err != nil {
		return err
	}
	if cp == "" {
		return storage.Errorf("rmdir", cp, storage.ErrInvalidParameters, "cannot remove backend root")
	}

	info, err := b.lookup(ctx, cp)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return storage.NewError("rmdir", cp, storage.ErrNotDirectory, nil)
	}

	keys, err := b.listAll(ctx, b.dirKey(cp))
	if err != nil {
		return mapError("rmdir", cp, err)
	}
	for _, key := range keys {
		if err := b.deleteKey(ctx, key); err != nil {
			return mapError("rmdir", cp, err)
		}
	}
	return nil
}

func (b *Backend) Unlink(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := b.resolve("unlink", path)
	if err != nil {
		return err
	}

	info, err := b.lookup(ctx, cp)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return storage.NewError("unlink", cp, storage.ErrIsDirectory, nil)
	}
	return mapError("unlink", cp, b.deleteKey(ctx, b.objectKey(cp)))
}

func (b *Backend) Rename(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := b.resolve("rename", src)
	if err != nil {
		return err
	}
	to, err := b.resolve("rename", dst)
	if err != nil {
		return err
	}
	if from == "" || to == "" {
		return storage.Errorf("rename", src, storage.ErrInvalidParameters, "cannot rename backend root")
	}
	if from == to {
		return nil
	}
	if strings.HasPrefix(to, from+"/") {
		return storage.Errorf("rename", src, storage.ErrInvalidParameters, "cannot move %q below itself", src)
	}

	info, err := b.lookup(ctx, from)
	if err != nil {
		return err
	}
	if err := b.requireParent(ctx, "rename", to); err != nil {
		return err
	}

	if !info.IsDir() {
		if err := b.copyKey(ctx, b.objectKey(from), b.objectKey(to)); err != nil {
			return mapError("rename", from, err)
		}
		return mapError("rename", from, b.deleteKey(ctx, b.objectKey(from)))
	}

	srcPrefix, dstPrefix := b.dirKey(from), b.dirKey(to)
	keys, err := b.listAll(ctx, srcPrefix)
	if err != nil {
		return mapError("rename", from, err)
	}

	hasMarker := false
	for _, key := range keys {
		if key == srcPrefix {
			hasMarker = true
		}
		if err := b.copyKey(ctx, key, dstPrefix+strings.TrimPrefix(key, srcPrefix)); err != nil {
			return mapError("rename", from, err)
		}
	}
	if !hasMarker {
		if err := b.putObject(ctx, dstPrefix, bytes.NewReader(nil), 0); err != nil {
			return mapError("rename", to, err)
		}
	}
	for _, key := range keys {
		if err := b.deleteKey(ctx, key); err != nil {
			return mapError("rename", from, err)
		}
	}
	return nil
}

func (b *Backend) copyKey(ctx context.Context, from, to string) error {
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		CopySource: aws.String(b.copySource(from)),
		Key:        aws.String(to),
	})
	return err
}

func (b *Backend) Stat(ctx context.Context, path string) (*storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, err := b.resolve("stat", path)
	if err != nil {
		return nil, err
	}
	return b.lookup(ctx, cp)
}

func (b *Backend) PutContents(ctx context.Context, path string, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cp, err := b.resolve("file_put_contents", path)
	if err != nil {
		return 0, err
	}
	if cp == "" {
		return 0, storage.NewError("file_put_contents", cp, storage.ErrIsDirectory, nil)
	}
	if err := b.requireParent(ctx, "file_put_contents", cp); err != nil {
		return 0, err
	}

	if err := b.putObject(ctx, b.objectKey(cp), bytes.NewReader(data), int64(len(data))); err != nil {
		return 0, mapError("file_put_contents", cp, err)
	}
	return len(data), nil
}

func (b *Backend) GetContents(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, err := b.resolve("file_get_contents", path)
	if err != nil {
		return nil, err
	}

	info, err := b.lookup(ctx, cp)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, storage.NewError("file_get_contents", cp, storage.ErrIsDirectory, nil)
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(cp)),
	})
	if err != nil {
		return nil, mapError("file_get_contents", cp, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, mapError("file_get_contents", cp, err)
	}
	return data, nil
}

func (b *Backend) IsDir(ctx context.Context, path string) (bool, error) {
	info, err := b.Stat(ctx, path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (b *Backend) FileType(ctx context.Context, path string) (storage.FileType, error) {
	info, err := b.Stat(ctx, path)
	if err != nil {
		return "", err
	}
	return info.Type, nil
}

func (b *Backend) ReadDir(ctx context.Context, path string) ([]storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, err := b.resolve("opendir", path)
	if err != nil {
		return nil, err
	}

	info, err := b.lookup(ctx, cp)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, storage.NewError("opendir", cp, storage.ErrNotDirectory, nil)
	}

	prefix := b.dirKey(cp)
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var entries []storage.FileInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError("opendir", cp, err)
		}
		for _, cpfx := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cpfx.Prefix), prefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, storage.FileInfo{Name: name, Type: storage.TypeDirectory})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			entries = append(entries, storage.FileInfo{
				Name:  strings.TrimPrefix(key, prefix),
				Size:  aws.ToInt64(obj.Size),
				MTime: aws.ToTime(obj.LastModified),
				Type:  storage.TypeFile,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// FreeSpace is unknown for object stores.
func (b *Backend) FreeSpace(ctx context.Context, path string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return storage.SpaceUnknown, nil
}

