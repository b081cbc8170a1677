package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/c360studio/matchroom/export"
)

// Destination stores an encoded bundle under a file name and returns where
// it ended up.
type Destination interface {
	Name() string
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// DirDestination writes backups into a local directory.
type DirDestination struct {
	dir string
}

// NewDirDestination creates a destination writing into dir. The directory
// is created on first use.
func NewDirDestination(dir string) *DirDestination {
	return &DirDestination{dir: dir}
}

func (d *DirDestination) Name() string { return "dir:" + d.dir }

// Put writes data atomically: a reader never sees a half-written backup.
func (d *DirDestination) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, ".tmp-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}

	dst := filepath.Join(d.dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("move backup into place: %w", err)
	}
	return dst, nil
}

// S3Options configures an S3-compatible bucket.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Destination uploads backups to an S3-compatible bucket (AWS, R2, MinIO).
type S3Destination struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Destination builds an S3 client. Without static keys the default
// AWS credential chain is used.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Destination{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (d *S3Destination) Name() string { return "s3:" + d.bucket }

// Put uploads data as prefix/name.
func (d *S3Destination) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(d.prefix, name)

	contentType := "application/octet-stream"
	if format, err := export.FormatFromPath(name); err == nil {
		contentType = export.FormatRegistry[format].MIMEType
	}

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", d.bucket, key), nil
}
