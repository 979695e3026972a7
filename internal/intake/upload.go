package intake

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// DefaultMaxUploadBytes is the size cap when none is configured.
const DefaultMaxUploadBytes = 15 << 20

var (
	ErrEmptyUpload = errors.New("intake: file is empty")
	ErrTooLarge    = errors.New("intake: file too large")
	ErrNotPDF      = errors.New("intake: file is not a PDF")
)

var pdfMagic = []byte("%PDF-")

// Upload is one PDF handed to the service.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Validate checks size and type. maxBytes <= 0 uses DefaultMaxUploadBytes.
func (u Upload) Validate(maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if len(u.Data) == 0 {
		return ErrEmptyUpload
	}
	if int64(len(u.Data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(u.Data), maxBytes)
	}
	if !bytes.HasPrefix(u.Data, pdfMagic) && mediaType(u.ContentType) != "application/pdf" {
		return ErrNotPDF
	}
	return nil
}

// Normalized fills a default name and content type.
func (u Upload) Normalized() Upload {
	name := strings.TrimSpace(filepath.Base(u.FileName))
	if name == "" || name == "." || name == "/" {
		name = "upload.pdf"
	}
	u.FileName = name
	u.ContentType = "application/pdf"
	return u
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
