package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBaseURL = "https://api.dify.ai/v1"
	defaultUser    = "dental-app-user"
	maxErrorBody   = 4096
	// maxResponseBody caps how much of any upstream response is read.
	maxResponseBody = 8 << 20
)

// ErrNotConfigured is returned by every call when no API key is set. The
// client still builds so diagnostics can report the missing key.
var ErrNotConfigured = errors.New("dify: DIFY_API_KEY is not set")

// Endpoint labels used in metrics and spans.
const (
	EndpointUpload   = "files_upload"
	EndpointWorkflow = "workflows_run"
	EndpointChat     = "chat_messages"
)

// Config describes how to reach the Dify API.
type Config struct {
	BaseURL    string
	APIKey     string
	User       string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// CallObserver receives one callback per upstream request.
type CallObserver interface {
	ObserveUpstream(endpoint string, status int, seconds float64)
}

// Client calls the Dify file, workflow and chat endpoints.
type Client struct {
	baseURL  string
	apiKey   string
	user     string
	http     *http.Client
	tracer   trace.Tracer
	observer CallObserver
}

// Option customizes a Client.
type Option func(*Client)

// WithObserver wires a metrics observer.
func WithObserver(observer CallObserver) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient validates the base URL and returns a client. An empty API key
// is accepted; calls then fail with ErrNotConfigured.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("dify: invalid base url %q", baseURL)
	}
	user := strings.TrimSpace(cfg.User)
	if user == "" {
		user = defaultUser
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		user:    user,
		http:    httpClient,
		tracer:  otel.Tracer("dental.internal.dify"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// User returns the end-user identifier sent with every call.
func (c *Client) User() string {
	return c.user
}

// UploadFile stores a document with Dify so workflows can reference it.
func (c *Client) UploadFile(ctx context.Context, name, contentType string, data []byte) (*FileRef, error) {
	if len(data) == 0 {
		return nil, errors.New("dify: file data required")
	}
	if strings.TrimSpace(name) == "" {
		name = "upload.pdf"
	}
	if contentType == "" {
		contentType = "application/pdf"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("dify: build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("dify: write multipart: %w", err)
	}
	if err := mw.WriteField("user", c.user); err != nil {
		return nil, fmt.Errorf("dify: write multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("dify: close multipart: %w", err)
	}

	resp, err := c.do(ctx, EndpointUpload, "/files/upload", mw.FormDataContentType(), body.Bytes())
	if err != nil {
		return nil, err
	}

	var ref FileRef
	if err := json.Unmarshal(resp, &ref); err != nil {
		return nil, fmt.Errorf("dify: decode upload response: %w", err)
	}
	if ref.ID == "" {
		return nil, errors.New("dify: upload response missing file id")
	}
	return &ref, nil
}

// RunWorkflow executes the published workflow in blocking mode.
func (c *Client) RunWorkflow(ctx context.Context, inputs map[string]any) (*WorkflowResult, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}
	payload, err := json.Marshal(workflowRequest{
		Inputs:       inputs,
		ResponseMode: "blocking",
		User:         c.user,
	})
	if err != nil {
		return nil, fmt.Errorf("dify: encode workflow request: %w", err)
	}

	raw, err := c.do(ctx, EndpointWorkflow, "/workflows/run", "application/json", payload)
	if err != nil {
		return nil, err
	}
	return decodeWorkflowResult(raw), nil
}

// SendChatMessage asks a chat-app deployment about the uploaded files.
func (c *Client) SendChatMessage(ctx context.Context, query string, files []FileRef) (*ChatResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("dify: chat query required")
	}
	attachments := make([]chatFile, 0, len(files))
	for _, f := range files {
		attachments = append(attachments, chatFile{
			Type:           "document",
			TransferMethod: "local_file",
			UploadFileID:   f.ID,
		})
	}
	payload, err := json.Marshal(chatRequest{
		Inputs:       map[string]any{},
		Query:        query,
		ResponseMode: "blocking",
		User:         c.user,
		Files:        attachments,
	})
	if err != nil {
		return nil, fmt.Errorf("dify: encode chat request: %w", err)
	}

	raw, err := c.do(ctx, EndpointChat, "/chat-messages", "application/json", payload)
	if err != nil {
		return nil, err
	}
	var out ChatResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("dify: decode chat response: %w", err)
	}
	out.Raw = raw
	return &out, nil
}

// Ping runs the workflow with no inputs to check key and publication state.
func (c *Client) Ping(ctx context.Context) (*WorkflowResult, error) {
	return c.RunWorkflow(ctx, map[string]any{})
}

// ProbeEmptyFile runs the workflow with an empty file variable.
func (c *Client) ProbeEmptyFile(ctx context.Context) (*WorkflowResult, error) {
	return c.RunWorkflow(ctx, map[string]any{"file": ""})
}

func (c *Client) do(ctx context.Context, endpoint, path, contentType string, payload []byte) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, span := c.tracer.Start(ctx, "dify."+endpoint)
	defer span.End()
	span.SetAttributes(
		attribute.String("dify.endpoint", endpoint),
		attribute.Int("dify.request_bytes", len(payload)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("dify: request build failed: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, 0, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, fmt.Errorf("dify: %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	c.observe(endpoint, resp.StatusCode, start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dify: read %s response: %w", endpoint, err)
	}
	if len(data) > maxResponseBody {
		err := fmt.Errorf("dify: %s response exceeds %d bytes", endpoint, maxResponseBody)
		span.RecordError(err)
		span.SetStatus(codes.Error, "response too large")
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(endpoint, resp.StatusCode, data)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, resp.Status)
		return nil, apiErr
	}
	return data, nil
}

func (c *Client) observe(endpoint string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(endpoint, status, time.Since(start).Seconds())
	}
}
