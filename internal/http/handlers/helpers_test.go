package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/wolfman30/dental-report-ai/internal/dify"
	"github.com/wolfman30/dental-report-ai/internal/intake"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF")

func multipartRequest(t *testing.T, target, fileName, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

type fakeProcessor struct {
	maxBytes int64
	report   *intake.Report
	err      error
	upload   intake.Upload
	opts     intake.Options
	calls    int
}

func (f *fakeProcessor) Process(_ context.Context, upload intake.Upload, opts intake.Options) (*intake.Report, error) {
	f.calls++
	f.upload = upload
	f.opts = opts
	if err := upload.Validate(f.maxBytes); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeProcessor) MaxUploadBytes() int64 {
	if f.maxBytes <= 0 {
		return intake.DefaultMaxUploadBytes
	}
	return f.maxBytes
}

type fakeDiagnostics struct {
	pingErr    error
	emptyErr   error
	uploadErr  error
	attempts   []dify.Attempt
	uploaded   string
	probedWith string
}

func (f *fakeDiagnostics) Ping(context.Context) (*dify.WorkflowResult, error) {
	if f.pingErr != nil {
		return nil, f.pingErr
	}
	return &dify.WorkflowResult{Status: "succeeded", Raw: []byte(`{"data":{"status":"succeeded"}}`)}, nil
}

func (f *fakeDiagnostics) ProbeEmptyFile(context.Context) (*dify.WorkflowResult, error) {
	if f.emptyErr != nil {
		return nil, f.emptyErr
	}
	return &dify.WorkflowResult{Raw: []byte(`{}`)}, nil
}

func (f *fakeDiagnostics) UploadFile(_ context.Context, name, _ string, _ []byte) (*dify.FileRef, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploaded = name
	return &dify.FileRef{ID: "file-1", Name: name}, nil
}

func (f *fakeDiagnostics) ProbePatterns(_ context.Context, variable, _ string) []dify.Attempt {
	f.probedWith = variable
	return f.attempts
}
