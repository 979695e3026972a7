package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("archive: object not found")

// BlobStore stores opaque objects by key.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives uploaded PDFs and extraction results to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *slog.Logger
}

var tracer = otel.Tracer("dental.internal.archive")

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

// Put writes one object.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) error {
	if !s.Enabled() {
		return nil
	}
	ctx, span := tracer.Start(ctx, "archive.put")
	defer span.End()
	span.SetAttributes(attribute.String("archive.key", key), attribute.Int("archive.bytes", len(data)))

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	return nil
}

// Get reads one object.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrNotFound
	}
	ctx, span := tracer.Start(ctx, "archive.get")
	defer span.End()
	span.SetAttributes(attribute.String("archive.key", key))

	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("archive: s3 get %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	return data, nil
}

// PDFKey is where an upload with the given content hash is stored.
func PDFKey(sha string, at time.Time) string {
	return fmt.Sprintf("reports/v1/pdf/%d/%02d/%02d/%s.pdf", at.Year(), at.Month(), at.Day(), sha)
}

// ResultKey is where the extraction record of a request is stored.
func ResultKey(requestID string, at time.Time) string {
	return fmt.Sprintf("reports/v1/results/%d/%02d/%02d/%s.json", at.Year(), at.Month(), at.Day(), requestID)
}

// ArchiveReport writes a ReportRecord as JSON to S3 and appends to the manifest.
func (s *Store) ArchiveReport(ctx context.Context, record *ReportRecord) error {
	if !s.Enabled() {
		return nil
	}

	now := record.ArchivedAt
	if now.IsZero() {
		now = time.Now().UTC()
		record.ArchivedAt = now
	}
	if record.Version == "" {
		record.Version = "1.0"
	}
	record.Error = ScrubEmails(record.Error)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	key := ResultKey(record.RequestID, now)
	if err := s.Put(ctx, key, "application/json", data); err != nil {
		return err
	}

	s.logger.Info("archived report to S3",
		"request_id", record.RequestID,
		"s3_key", key,
		"source", record.Source,
		"success", record.Success,
	)

	entry := ManifestEntry{
		RequestID:  record.RequestID,
		SHA256:     record.SHA256,
		S3Key:      key,
		PDFKey:     record.PDFKey,
		Source:     string(record.Source),
		Success:    record.Success,
		FieldCount: record.Fields.Count(),
		ArchivedAt: now.Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		// the record itself is already stored
		s.logger.Warn("failed to append manifest", "error", err, "request_id", record.RequestID)
	}
	return nil
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// S3 has no append, so this is read-modify-write.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := time.Now().UTC()
	manifestKey := fmt.Sprintf("reports/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	existing, err := s.Get(ctx, manifestKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	if err := s.Put(ctx, manifestKey, "application/x-ndjson", buf.Bytes()); err != nil {
		return fmt.Errorf("archive: put manifest: %w", err)
	}
	return nil
}

func isNotFoundErr(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "StatusCode: 404")
}
