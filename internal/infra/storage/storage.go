package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	s3.ListObjectsV2APIClient
}

func NewS3Client(config aws.Config) *s3.Client {
	return s3.NewFromConfig(config, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

type Storage struct {
	client S3Client
	bucket string
}

// NewStorage reads MANIFEST_BUCKET; an empty bucket turns archiving off.
func NewStorage(client S3Client) *Storage {
	return &Storage{client: client, bucket: env.GetEnv("MANIFEST_BUCKET", "")}
}

func NewStorageWithBucket(client S3Client, bucket string) *Storage {
	return &Storage{client: client, bucket: bucket}
}

func (s *Storage) Enabled() bool {
	return s != nil && s.bucket != ""
}

// Manifest is the non-secret record of what a run left behind.
type Manifest struct {
	Workflow        string    `json:"workflow"`
	RunID           string    `json:"runID"`
	Slug            string    `json:"slug"`
	DatabaseName    string    `json:"databaseName"`
	TargetGroupARN  string    `json:"targetGroupArn,omitempty"`
	ListenerRuleARN string    `json:"listenerRuleArn,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	ArchivedAt      time.Time `json:"archivedAt"`
}

func ManifestKey(m Manifest) string {
	return fmt.Sprintf("customers/%s/%s-%s.json", m.Slug, m.RunID, m.Workflow)
}

func (s *Storage) PutManifest(ctx context.Context, m Manifest) (string, error) {
	if !s.Enabled() {
		slog.Debug("manifest bucket not configured, skipping", "slug", m.Slug)
		return "", nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	key := ManifestKey(m)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("uploading manifest %s: %w", key, err)
	}
	return key, nil
}

// ListManifests returns the keys archived for slug, oldest run first.
func (s *Storage) ListManifests(ctx context.Context, slug string) ([]string, error) {
	if !s.Enabled() {
		return nil, nil
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("customers/" + slug + "/"),
	})
	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing manifests: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
