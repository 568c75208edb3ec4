package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/incierge/incierge-intake/internal/leads"
	"github.com/incierge/incierge-intake/pkg/logging"
)

const defaultPrefix = "contact-leads/v1"

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store archives accepted lead records to S3, one JSON object per ticket.
type Store struct {
	bucket   string
	prefix   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket, prefix string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{bucket: bucket, prefix: prefix, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Key returns the object key for rec, partitioned by submission date.
func (s *Store) Key(rec *leads.Record) string {
	ts, err := rec.SubmittedTime()
	if err != nil {
		ts = time.Now().UTC()
	}
	return fmt.Sprintf("%s/by-date/%d/%02d/%02d/%s.json",
		s.prefix, ts.Year(), ts.Month(), ts.Day(), rec.Ticket)
}

// ArchiveLead writes rec as JSON. Records are immutable so the object is written once.
func (s *Store) ArchiveLead(ctx context.Context, rec *leads.Record) error {
	if !s.Enabled() {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	key := s.Key(rec)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived lead to S3", "ticket", rec.Ticket, "s3_key", key)
	return nil
}
