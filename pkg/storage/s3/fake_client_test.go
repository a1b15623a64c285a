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
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	data     []byte
	modified time.Time
}

// fakeClient is an in-memory stand-in for a single S3 bucket.
type fakeClient struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string]fakeObject
	pageSize int
	calls    map[string]int
	ranges   []string
}

func newFakeClient(bucket string) *fakeClient {
	return &fakeClient{
		bucket:   bucket,
		objects:  make(map[string]fakeObject),
		pageSize: 2,
		calls:    make(map[string]int),
	}
}

func (c *fakeClient) checkBucket(bucket *string) error {
	if aws.ToString(bucket) != c.bucket {
		return &types.NoSuchBucket{Message: aws.String("no such bucket")}
	}
	return nil
}

func (c *fakeClient) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if err := c.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	return &s3.HeadBucketOutput{}, nil
}

func (c *fakeClient) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["HeadObject"]++

	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (c *fakeClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["GetObject"]++

	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	data := obj.data
	if in.Range != nil {
		c.ranges = append(c.ranges, *in.Range)
		var start int
		if _, err := fmt.Sscanf(*in.Range, "bytes=%d-", &start); err != nil {
			return nil, err
		}
		if start > len(data) {
			start = len(data)
		}
		data = data[start:]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(append([]byte(nil), data...))),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (c *fakeClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var data []byte
	if in.Body != nil {
		var err error
		if data, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["PutObject"]++
	c.objects[aws.ToString(in.Key)] = fakeObject{data: data, modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeClient) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["DeleteObject"]++
	delete(c.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (c *fakeClient) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	source := aws.ToString(in.CopySource)
	bucket, escaped, ok := strings.Cut(source, "/")
	if !ok || bucket != c.bucket {
		return nil, errors.New("invalid copy source " + source)
	}
	key, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["CopyObject"]++

	obj, found := c.objects[key]
	if !found {
		return nil, &types.NoSuchKey{}
	}
	c.objects[aws.ToString(in.Key)] = fakeObject{data: append([]byte(nil), obj.data...), modified: time.Now()}
	return &s3.CopyObjectOutput{}, nil
}

// ListObjectsV2 pages through keys in lexical order, pageSize entries at a
// time. The continuation token is the last key consumed.
func (c *fakeClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["ListObjectsV2"]++

	prefix := aws.ToString(in.Prefix)
	delimiter := aws.ToString(in.Delimiter)
	after := aws.ToString(in.ContinuationToken)

	limit := c.pageSize
	if in.MaxKeys != nil && int(*in.MaxKeys) < limit {
		limit = int(*in.MaxKeys)
	}

	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	count := 0
	last := ""
	i := 0
	for i < len(keys) && count < limit {
		key := keys[i]
		rest := strings.TrimPrefix(key, prefix)
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				common := prefix + rest[:idx+len(delimiter)]
				out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(common)})
				for i < len(keys) && strings.HasPrefix(keys[i], common) {
					last = keys[i]
					i++
				}
				count++
				continue
			}
		}

		obj := c.objects[key]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
		last = key
		count++
		i++
	}

	if i < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(last)
	} else {
		out.IsTruncated = aws.Bool(false)
	}
	out.KeyCount = aws.Int32(int32(count))
	return out, nil
}

func (c *fakeClient) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[key]
	return ok
}
