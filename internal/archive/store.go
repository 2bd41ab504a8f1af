package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store archives raw webhook deliveries to S3 for audit and replay.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *slog.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Key returns the object key for a delivery body. Identical bodies map to
// the same key, so provider redeliveries overwrite instead of piling up.
func Key(source string, body []byte, receivedAt time.Time) string {
	sum := sha256.Sum256(body)
	day := receivedAt.UTC()
	return fmt.Sprintf("webhooks/%s/%d/%02d/%02d/%s.json",
		source, day.Year(), day.Month(), day.Day(), hex.EncodeToString(sum[:]))
}

// ArchiveWebhook writes the exact delivery bytes and returns the object key.
func (s *Store) ArchiveWebhook(ctx context.Context, source string, body []byte, receivedAt time.Time) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	key := Key(source, body, receivedAt)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"received-at": receivedAt.UTC().Format(time.RFC3339),
			"source":      source,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Debug("archived webhook delivery", "s3_key", key, "bytes", len(body))
	return key, nil
}
