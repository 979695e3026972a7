package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingObserver) ObserveUpstream(endpoint string, status int, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, endpoint)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "app-secret", User: "tester"}, opts...)
	require.NoError(t, err)
	return client
}

func TestNewClientWithoutKeyFailsEachCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL})
	require.NoError(t, err)
	assert.False(t, client.Configured())

	_, err = client.Ping(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = client.UploadFile(context.Background(), "a.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, called, "no request should leave without a key")

	report := NewProbeReport(client.Ping(context.Background()))
	assert.False(t, report.OK)
	assert.Equal(t, 0, report.StatusCode)
	assert.Equal(t, NotConfiguredHints(), report.Suggestions)
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"api.dify.ai/v1", "ftp://dify.example", "http://"} {
		_, err := NewClient(Config{BaseURL: raw, APIKey: "k"})
		assert.Error(t, err, raw)
	}
}

func TestResponseBodyIsCapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"outputs":{"text":"`))
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxResponseBody))
		_, _ = w.Write([]byte(`"}}}`))
	})
	_, err := client.RunWorkflow(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, client.baseURL)
	assert.Equal(t, defaultUser, client.User())
}

func TestUploadFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/upload", r.URL.Path)
		assert.Equal(t, "Bearer app-secret", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "tester", r.FormValue("user"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		body, _ := io.ReadAll(file)
		assert.Equal(t, "%PDF-1.4 test", string(body))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"file-1","name":"report.pdf","size":13,"extension":"pdf","mime_type":"application/pdf"}`))
	})

	ref, err := client.UploadFile(context.Background(), "report.pdf", "", []byte("%PDF-1.4 test"))
	require.NoError(t, err)
	assert.Equal(t, "file-1", ref.ID)
	assert.Equal(t, int64(13), ref.Size)
}

func TestUploadFileMissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := client.UploadFile(context.Background(), "a.pdf", "application/pdf", []byte("x"))
	require.Error(t, err)
}

func TestRunWorkflowSendsBlockingRequest(t *testing.T) {
	observer := &recordingObserver{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workflows/run", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "blocking", body["response_mode"])
		assert.Equal(t, "tester", body["user"])
		assert.Equal(t, map[string]any{"orig_mail": "f"}, body["inputs"])

		_, _ = w.Write([]byte(`{"workflow_run_id":"run-1","task_id":"task-1","data":{"status":"succeeded","outputs":{"shaho_count":"3"}}}`))
	}, WithObserver(observer))

	result, err := client.RunWorkflow(context.Background(), map[string]any{"orig_mail": "f"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "task-1", result.TaskID)
	assert.Equal(t, "succeeded", result.Status)
	assert.Contains(t, string(result.Raw), "shaho_count")
	assert.Equal(t, []string{EndpointWorkflow}, observer.calls)
}

func TestRunWorkflowAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized","message":"Access token is invalid","status":401}`))
	})

	_, err := client.RunWorkflow(context.Background(), nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)
	assert.Equal(t, "Access token is invalid", apiErr.Message)
	assert.False(t, apiErr.IsInputError())
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Contains(t, err.Error(), "workflows_run returned 401")
}

func TestSendChatMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat-messages", r.URL.Path)
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "extract", body.Query)
		require.Len(t, body.Files, 1)
		assert.Equal(t, "file-9", body.Files[0].UploadFileID)
		assert.Equal(t, "local_file", body.Files[0].TransferMethod)

		_, _ = w.Write([]byte(`{"message_id":"m1","conversation_id":"c1","answer":"社保 件数 3件"}`))
	})

	result, err := client.SendChatMessage(context.Background(), "extract", []FileRef{{ID: "file-9"}})
	require.NoError(t, err)
	assert.Equal(t, "社保 件数 3件", result.Answer)
	assert.Equal(t, "m1", result.MessageID)
	assert.NotEmpty(t, result.Raw)
}

func TestSendChatMessageRequiresQuery(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	_, err = client.SendChatMessage(context.Background(), " ", nil)
	require.Error(t, err)
}

func TestProbeEmptyFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body workflowRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"file": ""}, body.Inputs)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_param","message":"file is required"}`))
	})

	report := NewProbeReport(client.ProbeEmptyFile(context.Background()))
	assert.False(t, report.OK)
	assert.Equal(t, http.StatusBadRequest, report.StatusCode)
	assert.Contains(t, report.Body, "invalid_param")
	assert.NotEmpty(t, report.Suggestions)
}
