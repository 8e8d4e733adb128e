// Package s3store implements store.Store on an S3-compatible bucket using
// conditional writes.
//
// Each event is one JSON object at events/ev-<token>.json. The object's
// version and TTL are mirrored into user metadata so a writer can check them
// with a HEAD request; the ETag from that request guards the overwrite.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/alfredjeanlab/liveqa/internal/codec"
	"github.com/alfredjeanlab/liveqa/internal/model"
	"github.com/alfredjeanlab/liveqa/internal/store"
)

const (
	metaVersion = "v"
	metaTTL     = "ttl"
	contentType = "application/json"
)

// API is the subset of the S3 client the store uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store implements store.Store on S3.
type Store struct {
	client API
	bucket string
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates a store for bucket. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func New(ctx context.Context, bucket, region, endpoint string) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(cfg, s3opts...), bucket), nil
}

// NewWithClient creates a store over an existing client.
func NewWithClient(client API, bucket string) *Store {
	return &Store{client: client, bucket: bucket, now: time.Now}
}

// EnsureBucket creates the bucket, treating an already-owned bucket as
// success.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil || hasCode(err, "BucketAlreadyOwnedByYou") {
		return nil
	}
	return fmt.Errorf("s3 create bucket %s: %w", s.bucket, err)
}

func (s *Store) Get(ctx context.Context, token string) (*model.Record, error) {
	key := store.Key(token)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s: %w", key, err)
	}
	defer out.Body.Close()

	if ttl, ok := parseTTL(out.Metadata); ok && store.Expired(&ttl, s.now()) {
		return nil, store.ErrNotFound
	}
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read object %s: %w", key, err)
	}
	return codec.Unmarshal(data)
}

func (s *Store) Put(ctx context.Context, rec *model.Record) error {
	data, err := codec.Marshal(rec)
	if err != nil {
		return err
	}
	key := store.Key(rec.Token())

	if rec.Version == 0 {
		err := s.put(ctx, key, rec, data, func(in *s3.PutObjectInput) {
			in.IfNoneMatch = aws.String("*")
		})
		if !errors.Is(err, store.ErrConcurrency) {
			return err
		}
		return s.replaceExpired(ctx, key, rec, data)
	}

	head, err := s.head(ctx, key)
	if err != nil {
		return err
	}
	if head == nil || head.expired(s.now()) {
		return store.ErrNotFound
	}
	if head.version != rec.Version-1 {
		return store.ErrConcurrency
	}
	return s.put(ctx, key, rec, data, func(in *s3.PutObjectInput) {
		in.IfMatch = aws.String(head.etag)
	})
}

// replaceExpired retries a failed create over an object whose TTL has
// passed. A live object means the key is taken.
func (s *Store) replaceExpired(ctx context.Context, key string, rec *model.Record, data []byte) error {
	head, err := s.head(ctx, key)
	if err != nil {
		return err
	}
	if head != nil && !head.expired(s.now()) {
		return store.ErrExists
	}
	err = s.put(ctx, key, rec, data, func(in *s3.PutObjectInput) {
		if head == nil {
			in.IfNoneMatch = aws.String("*")
		} else {
			in.IfMatch = aws.String(head.etag)
		}
	})
	if errors.Is(err, store.ErrConcurrency) {
		return store.ErrExists
	}
	return err
}

func (s *Store) put(ctx context.Context, key string, rec *model.Record, data []byte, cond func(*s3.PutObjectInput)) error {
	meta := map[string]string{metaVersion: strconv.FormatUint(rec.Version, 10)}
	if rec.TTL != nil {
		meta[metaTTL] = strconv.FormatInt(*rec.TTL, 10)
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	}
	cond(in)
	if _, err := s.client.PutObject(ctx, in); err != nil {
		if hasCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
			return fmt.Errorf("s3 put object %s: %w", key, store.ErrConcurrency)
		}
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return nil
}

type objectHead struct {
	etag    string
	version uint64
	ttl     *int64
}

func (h *objectHead) expired(now time.Time) bool {
	return store.Expired(h.ttl, now)
}

// head returns nil when the object does not exist.
func (s *Store) head(ctx context.Context, key string) (*objectHead, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("s3 head object %s: %w", key, err)
	}
	v, err := strconv.ParseUint(out.Metadata[metaVersion], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("s3 head object %s: bad version metadata: %w", key, err)
	}
	h := &objectHead{etag: aws.ToString(out.ETag), version: v}
	if ttl, ok := parseTTL(out.Metadata); ok {
		h.ttl = &ttl
	}
	return h, nil
}

// PurgeExpired deletes event objects whose TTL metadata has passed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now()
	var n int64
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(codec.KeyPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return n, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			head, err := s.head(ctx, key)
			if err != nil {
				return n, err
			}
			if head == nil || !head.expired(now) {
				continue
			}
			_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket:  aws.String(s.bucket),
				Key:     aws.String(key),
				IfMatch: aws.String(head.etag),
			})
			if err != nil && !hasCode(err, "PreconditionFailed") {
				return n, fmt.Errorf("s3 delete object %s: %w", key, err)
			}
			if err == nil {
				n++
			}
		}
	}
	return n, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error { return nil }

func parseTTL(meta map[string]string) (int64, bool) {
	raw, ok := meta[metaTTL]
	if !ok {
		return 0, false
	}
	ttl, err := strconv.ParseInt(raw, 10, 64)
	return ttl, err == nil
}

func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return err != nil && hasCode(err, "NoSuchKey", "NotFound")
}
