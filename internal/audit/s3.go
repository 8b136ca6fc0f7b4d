package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3Shipper. Endpoint is optional and enables
// path-style addressing for S3-compatible services such as MinIO.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Shipper archives every entry as its own JSON object under
// <prefix>/<target_id>/<timestamp>-<id>.json.
type S3Shipper struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Shipper builds the S3 client. Static credentials are used when both key
// halves are configured; otherwise the default AWS credential chain applies.
func NewS3Shipper(ctx context.Context, cfg *S3Config) (*S3Shipper, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Shipper{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (ss *S3Shipper) Name() string { return "s3" }

// Ship uploads entry as a single object.
func (ss *S3Shipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	key := ss.objectKey(entry)
	_, err = ss.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(ss.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (ss *S3Shipper) objectKey(entry *LogEntry) string {
	name := fmt.Sprintf("%s-%s.json", entry.Timestamp.UTC().Format("20060102T150405.000000000Z"), entry.ID)
	return path.Join(ss.prefix, entry.TargetID, name)
}

func (ss *S3Shipper) Close() error { return nil }
