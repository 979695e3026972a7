package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-report-ai/internal/extraction"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte // key -> body
	getErr   error
}

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{
		bucket:      *input.Bucket,
		key:         *input.Key,
		contentType: *input.ContentType,
		body:        body,
	})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func TestStore_PutGet(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)

	require.NoError(t, store.Put(context.Background(), "a/b.pdf", "application/pdf", []byte("%PDF-")))
	got, err := store.Get(context.Background(), "a/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(got))
	assert.Equal(t, "test-bucket", mock.putCalls[0].bucket)
	assert.Equal(t, "application/pdf", mock.putCalls[0].contentType)

	_, err = store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_GetPropagatesOtherErrors(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("access denied")
	store := NewStore(mock, "test-bucket", nil)

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestStore_ArchiveReport(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)

	now := time.Date(2026, 2, 12, 15, 0, 0, 0, time.UTC)
	fields := extraction.Fields{ShahoCount: "25", ShahoAmount: "125000"}
	record := &ReportRecord{
		RequestID:  "req-123",
		SHA256:     "abc",
		FileName:   "daily.pdf",
		ArchivedAt: now,
		Source:     extraction.SourceOutputs,
		Success:    true,
		Fields:     fields,
		Error:      "notify owner@clinic.example failed",
	}

	require.NoError(t, store.ArchiveReport(context.Background(), record))

	// record + manifest
	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "reports/v1/results/2026/02/12/req-123.json", mock.putCalls[0].key)

	var decoded ReportRecord
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &decoded))
	assert.Equal(t, "req-123", decoded.RequestID)
	assert.Equal(t, "1.0", decoded.Version)
	assert.Equal(t, "125000", decoded.Fields.ShahoAmount)
	assert.NotContains(t, decoded.Error, "owner@clinic.example")

	assert.Contains(t, mock.putCalls[1].key, "reports/v1/manifests/")
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[1].body), &entry))
	assert.Equal(t, "req-123", entry.RequestID)
	assert.Equal(t, 2, entry.FieldCount)
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(nil, "", nil)
	assert.False(t, store.Enabled())

	assert.NoError(t, store.ArchiveReport(context.Background(), &ReportRecord{}))
	assert.NoError(t, store.Put(context.Background(), "k", "text/plain", []byte("x")))
	_, err := store.Get(context.Background(), "k")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_ManifestAppend(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)

	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{RequestID: "r-1"}))
	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{RequestID: "r-2"}))

	lastPut := mock.putCalls[len(mock.putCalls)-1]
	lines := bytes.Split(bytes.TrimSpace(lastPut.body), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestKeys(t *testing.T) {
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "reports/v1/pdf/2026/01/05/deadbeef.pdf", PDFKey("deadbeef", at))
	assert.Equal(t, "reports/v1/results/2026/01/05/r1.json", ResultKey("r1", at))
}
