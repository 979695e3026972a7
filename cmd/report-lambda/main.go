package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	appbootstrap "github.com/wolfman30/dental-report-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/dental-report-ai/internal/config"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	// Lambda invocations share no memory, so async jobs need SQS here.
	app, err := appbootstrap.Build(context.Background(), cfg, logger, appbootstrap.Options{WithJobs: !cfg.UseMemoryQueue})
	if err != nil {
		panic(err)
	}
	handler := app.NewHTTPHandler(nil, nil)

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, handler, evt)
	})
}

// handle replays an API Gateway HTTP event through the router.
func handle(ctx context.Context, handler http.Handler, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}
	if path == "" {
		path = "/"
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"content-type": "application/json"},
			Body:       `{"__is_success":0,"success":false,"error":"invalid body"}`,
		}, nil
	}

	target := path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body)).WithContext(ctx)
	for k, v := range evt.Headers {
		req.Header.Set(k, v)
	}
	if len(evt.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(evt.Cookies, "; "))
	}
	if ip := strings.TrimSpace(evt.RequestContext.HTTP.SourceIP); ip != "" && headerValue(evt.Headers, "x-real-ip") == "" {
		req.Header.Set("X-Real-IP", ip)
	}
	if host := strings.TrimSpace(evt.RequestContext.DomainName); host != "" {
		req.Host = host
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := events.APIGatewayV2HTTPResponse{
		StatusCode: rec.Code,
		Body:       rec.Body.String(),
		Headers:    map[string]string{},
	}
	for k, values := range rec.Header() {
		if len(values) > 0 {
			out.Headers[strings.ToLower(k)] = strings.Join(values, ",")
		}
	}
	return out, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(evt.Body)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
