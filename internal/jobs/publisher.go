package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/dental-report-ai/internal/archive"
	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

// ErrInvalidEmail rejects a malformed notification address.
var ErrInvalidEmail = errors.New("jobs: invalid notify email")

// Publisher stores uploads and enqueues extraction jobs.
type Publisher struct {
	queue    Queue
	jobs     JobRecorder
	blobs    archive.BlobStore
	maxBytes int64
	logger   *logging.Logger
}

// NewPublisher wires a publisher. maxBytes <= 0 uses the intake default.
func NewPublisher(queue Queue, jobs JobRecorder, blobs archive.BlobStore, maxBytes int64, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("jobs: queue cannot be nil")
	}
	if jobs == nil {
		panic("jobs: job store cannot be nil")
	}
	if blobs == nil {
		panic("jobs: blob store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, blobs: blobs, maxBytes: maxBytes, logger: logger}
}

// Enqueue validates the upload, stores the PDF, records a pending job and
// sends the queue message.
func (p *Publisher) Enqueue(ctx context.Context, upload intake.Upload, notifyEmail string) (*JobRecord, error) {
	if err := upload.Validate(p.maxBytes); err != nil {
		return nil, err
	}
	notifyEmail = strings.TrimSpace(notifyEmail)
	if notifyEmail != "" {
		if _, err := mail.ParseAddress(notifyEmail); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
		}
	}
	upload = upload.Normalized()

	jobID := uuid.NewString()
	blobKey := fmt.Sprintf("jobs/%s/%s.pdf", jobID, archive.ContentHash(upload.Data))
	if err := p.blobs.Put(ctx, blobKey, upload.ContentType, upload.Data); err != nil {
		return nil, fmt.Errorf("jobs: store upload: %w", err)
	}

	job := &JobRecord{
		JobID:       jobID,
		FileName:    upload.FileName,
		FileSize:    len(upload.Data),
		BlobKey:     blobKey,
		NotifyEmail: notifyEmail,
	}
	if err := p.jobs.PutPending(ctx, job); err != nil {
		return nil, err
	}

	body, err := encodePayload(Payload{
		JobID:       jobID,
		BlobKey:     blobKey,
		FileName:    upload.FileName,
		ContentType: upload.ContentType,
		NotifyEmail: notifyEmail,
	})
	if err != nil {
		return nil, err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return nil, err
	}

	p.logger.Info("extraction job enqueued", "job_id", jobID, "file_name", upload.FileName, "size", len(upload.Data))
	return job, nil
}
