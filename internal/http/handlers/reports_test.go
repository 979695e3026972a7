package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-report-ai/internal/dify"
	"github.com/wolfman30/dental-report-ai/internal/extraction"
	"github.com/wolfman30/dental-report-ai/internal/intake"
)

func successReport() *intake.Report {
	return &intake.Report{
		IsSuccess: 1,
		Success:   true,
		RequestID: "req-1",
		FileName:  "daily.pdf",
		Source:    extraction.SourceOutputs,
		Data:      extraction.Fields{ShahoCount: "12", ShahoAmount: "34560"},
		Missing:   []string{},
	}
}

func TestReportHandler_Multipart(t *testing.T) {
	proc := &fakeProcessor{report: successReport()}
	h := NewReportHandler(proc, nil)

	req := multipartRequest(t, "/api/reports?debug=1", "daily.pdf", "application/pdf", samplePDF, nil)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["__is_success"])
	assert.Equal(t, "12", body["data"].(map[string]any)["shaho_count"])

	assert.Equal(t, "daily.pdf", proc.upload.FileName)
	assert.Equal(t, samplePDF, proc.upload.Data)
	assert.True(t, proc.opts.IncludeRaw)
	assert.False(t, proc.opts.SkipCache)
	assert.Equal(t, "sync", proc.opts.Caller)
}

func TestReportHandler_JSONBase64(t *testing.T) {
	proc := &fakeProcessor{report: successReport()}
	h := NewReportHandler(proc, nil)

	req := jsonRequest(t, "/api/reports?nocache=true", map[string]string{
		"pdf_data":  "data:application/pdf;base64," + b64(samplePDF),
		"file_name": "daily.pdf",
	})
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, samplePDF, proc.upload.Data)
	assert.True(t, proc.opts.SkipCache)
}

func TestReportHandler_Errors(t *testing.T) {
	upstream := &intake.UpstreamError{
		Stage: "workflow",
		Err:   &dify.APIError{Endpoint: dify.EndpointWorkflow, StatusCode: http.StatusNotFound, Message: "app not published"},
	}

	tests := []struct {
		name     string
		proc     *fakeProcessor
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "invalid json",
			proc:     &fakeProcessor{},
			req:      func(t *testing.T) *http.Request { return httptest.NewRequest(http.MethodPost, "/api/reports", nil) },
			wantCode: http.StatusBadRequest,
		},
		{
			name: "missing pdf_data",
			proc: &fakeProcessor{},
			req: func(t *testing.T) *http.Request {
				return jsonRequest(t, "/api/reports", map[string]string{"file_name": "a.pdf"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "pdf_data is required",
		},
		{
			name: "bad base64",
			proc: &fakeProcessor{},
			req: func(t *testing.T) *http.Request {
				return jsonRequest(t, "/api/reports", map[string]string{"pdf_data": "%%%"})
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "missing file part",
			proc: &fakeProcessor{},
			req: func(t *testing.T) *http.Request {
				req := multipartRequest(t, "/api/reports", "x.pdf", "application/pdf", samplePDF, nil)
				req.Header.Set("Content-Type", "multipart/form-data; boundary=nope")
				return req
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "too large",
			proc: &fakeProcessor{maxBytes: 16},
			req: func(t *testing.T) *http.Request {
				return jsonRequest(t, "/api/reports", map[string]string{"pdf_data": b64(samplePDF)})
			},
			wantCode: http.StatusRequestEntityTooLarge,
		},
		{
			name: "not a pdf",
			proc: &fakeProcessor{},
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/reports", "notes.txt", "text/plain", []byte("hello"), nil)
			},
			wantCode: http.StatusUnsupportedMediaType,
		},
		{
			name: "upstream failure",
			proc: &fakeProcessor{err: upstream},
			req: func(t *testing.T) *http.Request {
				return jsonRequest(t, "/api/reports", map[string]string{"pdf_data": b64(samplePDF)})
			},
			wantCode: http.StatusBadGateway,
			wantErr:  "app not published",
		},
		{
			name: "unexpected failure",
			proc: &fakeProcessor{err: errors.New("disk on fire")},
			req: func(t *testing.T) *http.Request {
				return jsonRequest(t, "/api/reports", map[string]string{"pdf_data": b64(samplePDF)})
			},
			wantCode: http.StatusInternalServerError,
			wantErr:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewReportHandler(tt.proc, nil).Create(rec, tt.req(t))

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, float64(0), body["__is_success"])
			assert.Equal(t, false, body["success"])
			if tt.wantErr != "" {
				assert.Contains(t, body["error"], tt.wantErr)
			}
			assert.NotEmpty(t, body["debug"])
		})
	}
}

func TestReportHandler_DebugDetail(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantDebug []string
	}{
		{
			name: "upstream body",
			err: &intake.UpstreamError{
				Stage: "workflow",
				Err: &dify.APIError{
					Endpoint:   dify.EndpointWorkflow,
					StatusCode: http.StatusBadRequest,
					Message:    "orig_mail is required",
					Body:       `{"code":"invalid_param","message":"orig_mail is required"}`,
				},
			},
			wantCode:  http.StatusBadGateway,
			wantDebug: []string{"stage=workflow", "status=400", `"code":"invalid_param"`},
		},
		{
			name:      "validation",
			err:       intake.ErrNotPDF,
			wantCode:  http.StatusUnsupportedMediaType,
			wantDebug: []string{intake.ErrNotPDF.Error()},
		},
		{
			name:      "key not configured",
			err:       &intake.UpstreamError{Stage: "upload", Err: dify.ErrNotConfigured},
			wantCode:  http.StatusServiceUnavailable,
			wantDebug: []string{"stage=upload", "DIFY_API_KEY"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{err: tt.err}
			rec := httptest.NewRecorder()
			NewReportHandler(proc, nil).Create(rec, jsonRequest(t, "/api/reports", map[string]string{"pdf_data": b64(samplePDF)}))

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			for _, want := range tt.wantDebug {
				assert.Contains(t, body["debug"], want)
			}
		})
	}
}

func TestReportHandler_NotConfigured(t *testing.T) {
	proc := &fakeProcessor{err: &intake.UpstreamError{Stage: "upload", Err: dify.ErrNotConfigured}}
	rec := httptest.NewRecorder()
	NewReportHandler(proc, nil).Create(rec, jsonRequest(t, "/api/reports", map[string]string{"pdf_data": b64(samplePDF)}))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["__is_success"])
	assert.Contains(t, body["suggestion"], "DIFY_API_KEY")
	_, hasUpstream := body["upstream_status"]
	assert.False(t, hasUpstream)
}

func TestReportHandler_UpstreamStatusExposed(t *testing.T) {
	proc := &fakeProcessor{err: &intake.UpstreamError{
		Stage: "workflow",
		Err:   &dify.APIError{StatusCode: http.StatusUnauthorized, Message: "invalid key"},
	}}
	rec := httptest.NewRecorder()
	NewReportHandler(proc, nil).Create(rec, jsonRequest(t, "/api/reports", map[string]string{"pdf_data": b64(samplePDF)}))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(http.StatusUnauthorized), body["upstream_status"])
	assert.NotEmpty(t, body["suggestion"])
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/api/reports", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Method not allowed", body["error"])
	assert.Equal(t, "Method not allowed", body["debug"])
}
