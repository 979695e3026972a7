package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/wolfman30/dental-report-ai/internal/intake"
)

var errBadRequest = errors.New("invalid request")

// multipartOverhead leaves room for boundaries and the other form fields.
const multipartOverhead = 1 << 20

type jsonUpload struct {
	PDFData     string `json:"pdf_data"`
	FileName    string `json:"file_name"`
	NotifyEmail string `json:"notify_email"`
}

// uploadRequest is a decoded report submission.
type uploadRequest struct {
	Upload      intake.Upload
	NotifyEmail string
}

// readUpload accepts either a multipart form with a "file" part or a JSON body
// carrying base64 PDF data.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*uploadRequest, error) {
	if maxBytes <= 0 {
		maxBytes = intake.DefaultMaxUploadBytes
	}
	// base64 inflates by 4/3.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*4/3+multipartOverhead)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		return readMultipart(r)
	case mediaType == "application/json" || mediaType == "":
		return readJSON(r)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", errBadRequest, mediaType)
	}
}

func readMultipart(r *http.Request) (*uploadRequest, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, maxErr
		}
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: multipart field \"file\" is required", errBadRequest)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", errBadRequest, err)
	}
	return &uploadRequest{
		Upload: intake.Upload{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		},
		NotifyEmail: r.FormValue("notify_email"),
	}, nil
}

func readJSON(r *http.Request) (*uploadRequest, error) {
	var body jsonUpload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, maxErr
		}
		return nil, fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	encoded := strings.TrimSpace(body.PDFData)
	if encoded == "" {
		return nil, fmt.Errorf("%w: pdf_data is required", errBadRequest)
	}
	if _, after, ok := strings.Cut(encoded, ";base64,"); ok && strings.HasPrefix(encoded, "data:") {
		encoded = after
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf_data is not valid base64", errBadRequest)
	}
	return &uploadRequest{
		Upload:      intake.Upload{FileName: body.FileName, Data: data},
		NotifyEmail: body.NotifyEmail,
	}, nil
}
