// Package s3 keeps sensor exports in an S3 or MinIO bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"neosweat/internal/blob/core"
)

// Store maps export keys one to one onto object keys in a single bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// Config mirrors the blob.s3 configuration block. With no access key the
// default AWS credential chain is used.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

const defaultRegion = "us-east-1"

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 export store: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loaders := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		static := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		loaders = append(loaders, config.WithCredentialsProvider(static))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("s3 export store: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverS3 }

func (s *Store) Bucket() string { return s.bucket }

// Put uploads with If-None-Match so an occupied key is refused by the bucket.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		IfNoneMatch: aws.String("*"),
		Metadata:    core.CloneMetadata(opts.Metadata),
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		if hasStatus(err, http.StatusPreconditionFailed) {
			return core.Info{}, core.Exists(key)
		}
		return core.Info{}, err
	}
	head, err := s.head(ctx, key)
	if err != nil {
		return core.Info{}, err
	}
	return head, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if isNotFound(err) {
		return core.Info{}, nil, core.NotFound(key)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	info := attrs{out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified}.info(key)
	return info, out.Body, nil
}

// Delete heads the key first since DeleteObject succeeds for absent keys.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.head(ctx, key); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(prefix)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			out = append(out, attrs{size: obj.Size, etag: obj.ETag, modified: obj.LastModified}.info(aws.ToString(obj.Key)))
		}
	}
	slices.SortFunc(out, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (s *Store) head(ctx context.Context, key string) (core.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if isNotFound(err) {
		return core.Info{}, core.NotFound(key)
	}
	if err != nil {
		return core.Info{}, err
	}
	return attrs{out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified}.info(key), nil
}

// attrs collects the optional object fields the SDK returns as pointers.
type attrs struct {
	size        *int64
	contentType *string
	etag        *string
	metadata    map[string]string
	modified    *time.Time
}

func (a attrs) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         aws.ToInt64(a.size),
		ContentType:  aws.ToString(a.contentType),
		ETag:         strings.Trim(aws.ToString(a.etag), `"`),
		Metadata:     core.CloneMetadata(a.metadata),
		LastModified: aws.ToTime(a.modified).UTC(),
	}
}

// isNotFound covers NoSuchKey and NotFound as well as bare 404s from HEAD,
// which carry no error body.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound) || hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, status int) bool {
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == status
}
