package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/klauspost/compress/zstd"

	"willitrain/internal/types"
)

// Cache lookup outcomes, reported to CacheMetrics.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
	CacheError = "error"
)

// S3API is the subset of *s3.Client the cache uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// CacheMetrics receives one result per lookup.
type CacheMetrics interface {
	RecordCacheResult(result string)
}

// CachedProviderConfig configures NewCachedProvider.
type CachedProviderConfig struct {
	S3      S3API
	Bucket  string
	Next    Provider
	TTL     time.Duration // zero disables expiry
	Clock   types.Clock
	Metrics CacheMetrics
	Logger  *slog.Logger
}

// CachedProvider serves provider responses from zstd-compressed JSON objects
// in S3, falling through to Next on a miss, an expired object or any cache
// failure. Cache failures never fail a fetch.
type CachedProvider struct {
	s3      S3API
	bucket  string
	next    Provider
	ttl     time.Duration
	clock   types.Clock
	metrics CacheMetrics
	logger  *slog.Logger

	encoder     *zstd.Encoder
	decoderPool sync.Pool
}

func NewCachedProvider(cfg CachedProviderConfig) (*CachedProvider, error) {
	if cfg.S3 == nil || cfg.Next == nil {
		return nil, errors.New("history: cached provider requires S3 and Next")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("history: cached provider requires a bucket")
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("history: create zstd encoder: %w", err)
	}

	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &CachedProvider{
		s3:      cfg.S3,
		bucket:  cfg.Bucket,
		next:    cfg.Next,
		ttl:     cfg.TTL,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		encoder: enc,
		decoderPool: sync.Pool{
			New: func() any {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
				}
				return d
			},
		},
	}, nil
}

// Fetch returns the cached response for q when present and fresh, otherwise
// fetches from Next and writes the result back.
func (c *CachedProvider) Fetch(ctx context.Context, q Query) (*Response, error) {
	q = q.WithDefaults()
	key := q.Key()

	resp, result := c.lookup(ctx, key)
	c.record(result)
	if result == CacheHit {
		return resp, nil
	}

	fresh, err := c.next.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, key, fresh); err != nil {
		c.logger.WarnContext(ctx, "history cache write failed", "key", key, "error", err)
	}
	return fresh, nil
}

// Refresh fetches from Next unconditionally and overwrites the cached object.
// The prefetch worker uses it to keep hot locations warm.
func (c *CachedProvider) Refresh(ctx context.Context, q Query) error {
	q = q.WithDefaults()

	fresh, err := c.next.Fetch(ctx, q)
	if err != nil {
		return err
	}
	if err := c.store(ctx, q.Key(), fresh); err != nil {
		return types.NewAppError(types.ErrCodeInternalCache, "failed to write history cache", err)
	}
	return nil
}

// Warm fetches through the cache and discards the result.
func (c *CachedProvider) Warm(ctx context.Context, q Query) error {
	_, err := c.Fetch(ctx, q)
	return err
}

// Name implements core.HealthProbe.
func (c *CachedProvider) Name() string { return "history_cache" }

// Check implements core.HealthProbe by confirming the bucket is reachable.
func (c *CachedProvider) Check(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *CachedProvider) lookup(ctx context.Context, key string) (*Response, string) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, CacheMiss
		}
		c.logger.WarnContext(ctx, "history cache read failed", "key", key, "error", err)
		return nil, CacheError
	}
	defer out.Body.Close()

	if c.ttl > 0 && out.LastModified != nil && c.clock.Now().Sub(*out.LastModified) > c.ttl {
		return nil, CacheStale
	}

	compressed, err := io.ReadAll(out.Body)
	if err != nil {
		c.logger.WarnContext(ctx, "history cache read failed", "key", key, "error", err)
		return nil, CacheError
	}

	resp, err := c.decode(compressed)
	if err != nil {
		c.logger.WarnContext(ctx, "history cache entry corrupt", "key", key, "error", err)
		return nil, CacheError
	}
	return resp, CacheHit
}

func (c *CachedProvider) store(ctx context.Context, key string, resp *Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	compressed := c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(compressed),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("zstd"),
	})
	return err
}

func (c *CachedProvider) decode(compressed []byte) (*Response, error) {
	decoder := c.decoderPool.Get().(*zstd.Decoder)
	defer c.decoderPool.Put(decoder)

	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal cached response: %w", err)
	}
	return &resp, nil
}

func (c *CachedProvider) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheResult(result)
	}
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
