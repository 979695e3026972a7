package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-report-ai/internal/archive"
	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF")

func TestPublisher_Enqueue(t *testing.T) {
	queue := NewMemoryQueue(4)
	store := NewMemoryJobStore()
	blobs := archive.NewMemoryStore()
	pub := NewPublisher(queue, store, blobs, 0, logging.Default())

	job, err := pub.Enqueue(context.Background(), intake.Upload{FileName: "../daily.pdf", Data: samplePDF}, " owner@clinic.example ")
	require.NoError(t, err)
	require.NotEmpty(t, job.JobID)
	assert.Equal(t, "daily.pdf", job.FileName)
	assert.Equal(t, StatusPending, job.Status)
	assert.True(t, strings.HasPrefix(job.BlobKey, "jobs/"+job.JobID+"/"))

	stored, err := blobs.Get(context.Background(), job.BlobKey)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, stored)

	pending, err := store.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, "owner@clinic.example", pending.NotifyEmail)

	msgs, err := queue.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	payload, err := decodePayload(msgs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, payload.JobID)
	assert.Equal(t, job.BlobKey, payload.BlobKey)
	assert.Equal(t, "application/pdf", payload.ContentType)
}

func TestPublisher_RejectsInvalidUploads(t *testing.T) {
	queue := NewMemoryQueue(4)
	blobs := archive.NewMemoryStore()
	pub := NewPublisher(queue, NewMemoryJobStore(), blobs, 16, logging.Default())

	_, err := pub.Enqueue(context.Background(), intake.Upload{FileName: "a.pdf"}, "")
	assert.ErrorIs(t, err, intake.ErrEmptyUpload)

	_, err = pub.Enqueue(context.Background(), intake.Upload{FileName: "a.pdf", Data: samplePDF}, "")
	assert.ErrorIs(t, err, intake.ErrTooLarge)

	_, err = pub.Enqueue(context.Background(), intake.Upload{FileName: "a.txt", ContentType: "text/plain", Data: []byte("hello")}, "")
	assert.ErrorIs(t, err, intake.ErrNotPDF)

	_, err = pub.Enqueue(context.Background(), intake.Upload{FileName: "a.pdf", Data: []byte("%PDF-")}, "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	assert.Zero(t, blobs.Len(), "nothing should be stored for rejected uploads")
}

func TestPublisher_QueueFailure(t *testing.T) {
	queue := &failingQueue{err: errors.New("sqs down")}
	pub := NewPublisher(queue, NewMemoryJobStore(), archive.NewMemoryStore(), 0, logging.Default())

	_, err := pub.Enqueue(context.Background(), intake.Upload{FileName: "a.pdf", Data: samplePDF}, "")
	assert.ErrorContains(t, err, "sqs down")
}

type failingQueue struct {
	err error
}

func (q *failingQueue) Send(context.Context, string) error { return q.err }

func (q *failingQueue) Receive(context.Context, int, int) ([]Message, error) { return nil, q.err }

func (q *failingQueue) Delete(context.Context, string) error { return nil }
