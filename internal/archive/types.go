package archive

import (
	"encoding/json"
	"time"

	"github.com/wolfman30/dental-report-ai/internal/extraction"
)

// ReportRecord is the JSON document archived for every processed upload.
type ReportRecord struct {
	Version      string            `json:"version"` // "1.0"
	RequestID    string            `json:"request_id"`
	SHA256       string            `json:"sha256"`
	FileName     string            `json:"file_name"`
	FileSize     int               `json:"file_size"`
	PDFKey       string            `json:"pdf_key,omitempty"`
	ArchivedAt   time.Time         `json:"archived_at"`
	InputPattern string            `json:"input_pattern,omitempty"`
	Source       extraction.Source `json:"source"`
	Success      bool              `json:"success"`
	Fields       extraction.Fields `json:"data"`
	Missing      []string          `json:"missing,omitempty"`
	Error        string            `json:"error,omitempty"`
	RawResponse  json.RawMessage   `json:"raw_response,omitempty"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	RequestID  string `json:"request_id"`
	SHA256     string `json:"sha256"`
	S3Key      string `json:"s3_key"`
	PDFKey     string `json:"pdf_key,omitempty"`
	Source     string `json:"source"`
	Success    bool   `json:"success"`
	FieldCount int    `json:"field_count"`
	ArchivedAt string `json:"archived_at"`
}
