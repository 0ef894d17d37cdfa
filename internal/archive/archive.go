// Package archive keeps immutable snapshots of finished enhancement records
// in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"articleforge/internal/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Archiver stores a record snapshot and returns its key.
type Archiver interface {
	Archive(ctx context.Context, articleID string, record *core.EnhancementRecord) (string, error)
}

// S3Config contains S3 storage configuration
type S3Config struct {
	Endpoint        string // Optional: Custom endpoint for MinIO or DigitalOcean Spaces
	Region          string // AWS region (e.g., "us-east-1")
	Bucket          string // S3 bucket name
	AccessKeyID     string // Optional: falls back to the default credential chain
	SecretAccessKey string
	UsePathStyle    bool   // Use path-style addressing (required for MinIO)
	Prefix          string // Key prefix inside the bucket
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes one JSON object per record.
type S3Archive struct {
	client objectPutter
	bucket string
	prefix string
	newID  func() string
}

// NewS3Archive creates an S3Archive from cfg.
func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Archive(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Archive(client objectPutter, bucket, prefix string) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		newID:  uuid.NewString,
	}
}

// Key returns records/YYYY/MM/<article>/<id>.json under the prefix, dated
// by the record's generation time.
func (a *S3Archive) Key(articleID string, generatedAt time.Time, id string) string {
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}
	generatedAt = generatedAt.UTC()
	return path.Join(a.prefix, "records",
		fmt.Sprintf("%04d", generatedAt.Year()),
		fmt.Sprintf("%02d", int(generatedAt.Month())),
		safeSegment(articleID),
		id+".json")
}

// Archive uploads record as JSON.
func (a *S3Archive) Archive(ctx context.Context, articleID string, record *core.EnhancementRecord) (string, error) {
	if record == nil {
		return "", fmt.Errorf("no record to archive for %s", articleID)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}

	key := a.Key(articleID, record.GeneratedAt, a.newID())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"article-id":     articleID,
			"model":          record.Model,
			"prompt-version": record.PromptVersion,
			"fallback":       fmt.Sprintf("%t", record.IsFallback),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload record to S3: %w", err)
	}

	return key, nil
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}
