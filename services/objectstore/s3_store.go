package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config holds the settings for an S3-compatible endpoint.
type S3Config struct {
	// Endpoint is the host[:port] of the storage service. Empty targets
	// AWS S3 proper.
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseTLS    bool
}

// S3Store implements Store over any S3-compatible service.
//
// Path-style addressing is used when a custom endpoint is configured, which
// is what MinIO and most self-hosted gateways expect.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
}

// NewS3 builds the client. No network call happens here; the first
// operation surfaces connectivity problems.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrStorage, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			scheme := "https"
			if !cfg.UseTLS {
				scheme = "http"
			}
			endpoint := cfg.Endpoint
			if !strings.Contains(endpoint, "://") {
				endpoint = scheme + "://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
	}, nil
}

// EnsureBucket creates the bucket when missing. Idempotent.
func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("%w: create bucket %s: %v", ErrStorage, bucket, err)
	}
	return nil
}

// BucketExists reports whether the bucket is reachable.
func (s *S3Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: head bucket %s: %v", ErrStorage, bucket, err)
}

// Put streams an object into the bucket. size must match the reader's
// length; S3-compatible services require it up front for streamed uploads.
func (s *S3Store) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		return fmt.Errorf("%w: put %s/%s: %v", ErrStorage, bucket, key, err)
	}
	return nil
}

// Get opens an object for reading. The caller owns the ReadCloser.
func (s *S3Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		if isNotFound(err) {
			return nil, nil, fmt.Errorf("%w: %s/%s", ErrFileNotFound, bucket, key)
		}
		return nil, nil, fmt.Errorf("%w: get %s/%s: %v", ErrStorage, bucket, key, err)
	}
	info := &ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return out.Body, info, nil
}

// Stat fetches object metadata without the body.
func (s *S3Store) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrFileNotFound, bucket, key)
		}
		return nil, fmt.Errorf("%w: head %s/%s: %v", ErrStorage, bucket, key, err)
	}
	info := &ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// Exists reports object presence.
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.Stat(ctx, bucket, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	return false, err
}

// Delete removes an object. Deleting a missing key is not an error, which
// matches S3 semantics.
func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		return fmt.Errorf("%w: delete %s/%s: %v", ErrStorage, bucket, key, err)
	}
	return nil
}

// List returns all objects under a prefix, following pagination.
func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNoSuchBucket(err) {
				return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
			}
			return nil, fmt.Errorf("%w: list %s/%s: %v", ErrStorage, bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
				ETag: strings.Trim(aws.ToString(obj.ETag), `"`),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Copy duplicates an object within the bucket.
func (s *S3Store) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	source := bucket + "/" + srcKey
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(source)),
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		if isNotFound(err) {
			return fmt.Errorf("%w: %s/%s", ErrFileNotFound, bucket, srcKey)
		}
		return fmt.Errorf("%w: copy %s -> %s: %v", ErrStorage, srcKey, dstKey, err)
	}
	return nil
}

// PresignGet mints a time-limited GET URL for the object.
func (s *S3Store) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: presign %s/%s: %v", ErrStorage, bucket, key, err)
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	// HeadObject/HeadBucket surface bare 404s without a modeled type.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

func isNoSuchBucket(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchBucket"
	}
	return false
}
