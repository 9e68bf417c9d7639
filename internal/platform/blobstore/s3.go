package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	s3OpTimeout   = 10 * time.Second
	s3MaxAttempts = 3
	s3RetryBase   = 200 * time.Millisecond
)

// S3Config configures the S3 object store. AccessKey/SecretKey are optional;
// when empty the SDK falls back to its default credential chain (IAM role,
// env, shared config).
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Store is an ObjectStore backed by an S3 bucket. Every call carries its
// own timeout and transient failures are retried with exponential backoff.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// withRetry runs op up to s3MaxAttempts times, each attempt under its own
// deadline. Missing-object errors are terminal and never retried.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < s3MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s3RetryBase << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s3OpTimeout)
		err = op(attemptCtx)
		cancel()

		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return err
}

// isNotFound maps the SDK's missing-object errors onto ErrNotFound.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}

// Put retries require resending the object from its first byte: a failed
// attempt leaves a plain reader partially drained, so the body is rewound
// (or buffered when it cannot seek) before every attempt.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	seekable, err := rewindable(body)
	if err != nil {
		return fmt.Errorf("buffering s3 object %s: %w", key, err)
	}
	return withRetry(ctx, func(ctx context.Context) error {
		if _, err := seekable.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding s3 object %s: %w", key, err)
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          seekable,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("putting s3 object %s: %w", key, err)
		}
		return nil
	})
}

// rewindable returns body as an io.ReadSeeker, reading it fully into memory
// when it cannot seek (multipart upload streams cannot). The request body
// limit bounds the buffer.
func rewindable(body io.Reader) (io.ReadSeeker, error) {
	if rs, ok := body.(io.ReadSeeker); ok {
		return rs, nil
	}
	buf, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

// Get retries on the caller's context without a per-attempt deadline: the
// returned body is streamed after Get returns, and cancelling the request
// context would sever it mid-read.
func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	var err error
	for attempt := 0; attempt < s3MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s3RetryBase << (attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var out *s3.GetObjectOutput
		out, err = s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				return nil, ErrNotFound
			}
			err = fmt.Errorf("getting s3 object %s: %w", key, err)
			continue
		}
		return &Object{
			Body:        out.Body,
			ContentType: aws.ToString(out.ContentType),
			Size:        aws.ToInt64(out.ContentLength),
		}, nil
	}
	return nil, err
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("deleting s3 object %s: %w", key, err)
		}
		return nil
	})
}

func (s *S3Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	var url string
	err := withRetry(ctx, func(ctx context.Context) error {
		out, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(expiry))
		if err != nil {
			return fmt.Errorf("presigning s3 object %s: %w", key, err)
		}
		url = out.URL
		return nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}
