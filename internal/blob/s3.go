// Package blob uploads archives and reports to S3-compatible object storage
// (AWS S3 or MinIO).
package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-east-1"

// Config holds the bucket location and optional explicit credentials.
// Without credentials the default AWS chain (env, shared config) is used.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional; set for MinIO or other S3-compatible services
	PathStyle       bool
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Object describes a stored object.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Uploader writes objects under a key prefix in one bucket.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an Uploader from cfg.
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Bucket returns the target bucket name.
func (u *Uploader) Bucket() string { return u.bucket }

// Key returns the full object key for name.
func (u *Uploader) Key(name string) string {
	return path.Join(u.prefix, name)
}

// Put stores body under the prefixed name and returns the full key. body
// should be seekable (bytes.Reader, os.File) so the payload can be signed.
func (u *Uploader) Put(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	key := u.Key(name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}

// PutFile uploads the file at p under its base name.
func (u *Uploader) PutFile(ctx context.Context, p, contentType string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", p, err)
	}
	defer f.Close()
	return u.Put(ctx, filepath.Base(p), f, contentType)
}

// Get opens the object stored under the prefixed name.
func (u *Uploader) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	key := u.Key(name)
	out, err := u.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(u.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", u.bucket, key, err)
	}
	return out.Body, nil
}

// List returns the objects under the uploader's prefix sorted by key.
func (u *Uploader) List(ctx context.Context) ([]Object, error) {
	var (
		objects []Object
		token   *string
	)
	for {
		out, err := u.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(u.bucket),
			Prefix:            aws.String(u.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", u.bucket, u.prefix, err)
		}
		for _, obj := range out.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
