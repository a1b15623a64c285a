package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Open returns a handle for path.
//
// Mode "r" streams the object directly. All other modes download the
// current object (unless the mode truncates) into a write-back file that is
// uploaded with PutObject when the handle is closed.
func (b *Backend) Open(ctx context.Context, path string, mode storage.Mode) (storage.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, storage.Errorf("fopen", path, storage.ErrUnsupportedMode, "mode %q", mode)
	}
	cp, err := b.resolve("fopen", path)
	if err != nil {
		return nil, err
	}

	info, err := b.lookup(ctx, cp)
	exists := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if exists && info.IsDir() {
		return nil, storage.NewError("fopen", cp, storage.ErrIsDirectory, nil)
	}

	switch {
	case !exists && mode.MustExist():
		return nil, storage.NewError("fopen", cp, storage.ErrNotFound, nil)
	case exists && mode.Exclusive():
		return nil, storage.NewError("fopen", cp, storage.ErrExists, nil)
	}

	if !mode.Writable() {
		return &objectReader{
			ctx:  ctx,
			b:    b,
			path: cp,
			key:  b.objectKey(cp),
			size: info.Size,
		}, nil
	}

	if !exists {
		if err := b.requireParent(ctx, "fopen", cp); err != nil {
			return nil, err
		}
	}

	opts := storage.WriteBackOptions{
		Dir:    b.tempDir,
		Append: mode.Appends(),
		Commit: func(ctx context.Context, r io.Reader, size int64) error {
			if err := b.putObject(ctx, b.objectKey(cp), r, size); err != nil {
				return mapError("fclose", cp, err)
			}
			return nil
		},
	}

	if exists && !mode.Truncates() {
		out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.objectKey(cp)),
		})
		if err != nil {
			return nil, mapError("fopen", cp, err)
		}
		defer func() { _ = out.Body.Close() }()
		opts.Seed = out.Body
	}

	f, err := storage.NewWriteBackFile(ctx, opts)
	if err != nil {
		return nil, storage.IOError("fopen", cp, err)
	}
	return f, nil
}

// objectReader is a read-only handle over an object. The body is opened
// lazily and reopened with a Range header after a seek.
type objectReader struct {
	ctx  context.Context
	b    *Backend
	path string
	key  string
	size int64

	pos    int64
	body   io.ReadCloser
	closed bool
}

func (r *objectReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, storage.Errorf("fread", r.path, storage.ErrIO, "file already closed")
	}
	if r.pos >= r.size {
		return 0, io.EOF
	}

	if r.body == nil {
		input := &s3.GetObjectInput{
			Bucket: aws.String(r.b.bucket),
			Key:    aws.String(r.key),
		}
		if r.pos > 0 {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-", r.pos))
		}
		out, err := r.b.client.GetObject(r.ctx, input)
		if err != nil {
			return 0, mapError("fread", r.path, err)
		}
		r.body = out.Body
	}

	n, err := r.body.Read(p)
	r.pos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, mapError("fread", r.path, err)
	}
	return n, err
}

func (r *objectReader) Write([]byte) (int, error) {
	return 0, storage.Errorf("fwrite", r.path, storage.ErrUnsupportedMode, "file opened read-only")
}

func (r *objectReader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		target = r.size + offset
	default:
		return r.pos, storage.Errorf("fseek", r.path, storage.ErrInvalidParameters, "invalid whence %d", whence)
	}
	if target < 0 {
		return r.pos, storage.Errorf("fseek", r.path, storage.ErrInvalidParameters, "negative position")
	}

	if target != r.pos && r.body != nil {
		_ = r.body.Close()
		r.body = nil
	}
	r.pos = target
	return r.pos, nil
}

func (r *objectReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.body != nil {
		return r.body.Close()
	}
	return nil
}
