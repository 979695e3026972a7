package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Queue is the transport between the API and the extraction worker.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Payload is the queue message body. The PDF itself lives in the blob store
// because SQS messages are capped at 256 KiB.
type Payload struct {
	JobID       string `json:"job_id"`
	BlobKey     string `json:"blob_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

func encodePayload(p Payload) (string, error) {
	if p.JobID == "" || p.BlobKey == "" {
		return "", errors.New("jobs: payload requires job id and blob key")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("jobs: failed to encode payload: %w", err)
	}
	return string(body), nil
}

func decodePayload(body string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return Payload{}, fmt.Errorf("jobs: failed to decode payload: %w", err)
	}
	if p.JobID == "" || p.BlobKey == "" {
		return Payload{}, errors.New("jobs: payload missing job id or blob key")
	}
	return p, nil
}
