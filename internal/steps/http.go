package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// StepNameHTTP — имя HTTP обработчика.
	StepNameHTTP = "http"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи params HTTP обработчика.
const (
	paramMethod          = "method"
	paramURL             = "url"
	paramHeaders         = "headers"
	paramBody            = "body"
	paramFollowRedirects = "follow_redirects"
	paramValidateSSL     = "validate_ssl"
	paramTimeoutSec      = "timeout_sec"
)

// HTTPStep выполняет HTTP запрос.
//
// Params:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/data",
//	    "headers": {"Authorization": "Bearer xxx"},
//	    "body": {"key": "value"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30
//	}
//
// Outputs:
//
//	{
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json", ...},
//	    "body": {...}  // JSON или строка
//	}
type HTTPStep struct{}

// NewHTTPStep создаёт HTTPStep.
func NewHTTPStep() *HTTPStep {
	return &HTTPStep{}
}

// Name возвращает имя обработчика.
func (s *HTTPStep) Name() string {
	return StepNameHTTP
}

// Execute выполняет запрос. Статус >= 400 возвращает outputs и *HTTPError.
func (s *HTTPStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	cfg, err := parseHTTPParams(req.Params)
	if err != nil {
		return nil, err
	}

	httpReq, err := cfg.request(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := cfg.client().Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := parseResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return out, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
		}
	}
	return out, nil
}

// httpParams — разобранные params.
type httpParams struct {
	method          string
	url             string
	headers         map[string]string
	body            any
	followRedirects bool
	validateSSL     bool
	timeout         time.Duration
}

func parseHTTPParams(params map[string]any) (*httpParams, error) {
	cfg := &httpParams{
		method:          strings.ToUpper(ParamString(params, paramMethod)),
		url:             ParamString(params, paramURL),
		headers:         ParamStringMap(params, paramHeaders),
		body:            params[paramBody],
		followRedirects: ParamBool(params, paramFollowRedirects, true),
		validateSSL:     ParamBool(params, paramValidateSSL, true),
		timeout:         defaultHTTPTimeout,
	}

	if cfg.url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, StepNameHTTP)
	}
	if cfg.method == "" {
		cfg.method = http.MethodGet
	}
	if cfg.headers == nil {
		cfg.headers = make(map[string]string)
	}
	if sec := ParamInt(params, paramTimeoutSec); sec > 0 {
		cfg.timeout = time.Duration(sec) * time.Second
	}
	return cfg, nil
}

func (c *httpParams) client() *http.Client {
	var checkRedirect func(*http.Request, []*http.Request) error
	if !c.followRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       c.timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !c.validateSSL},
		},
	}
}

func (c *httpParams) request(ctx context.Context) (*http.Request, error) {
	var bodyReader io.Reader

	if c.body != nil {
		var data []byte
		switch v := c.body.(type) {
		case string:
			data = []byte(v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("serialize body: %w", err)
			}
			data = b
			if _, ok := c.headers["Content-Type"]; !ok {
				c.headers["Content-Type"] = "application/json"
			}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// parseResponse читает ответ (не более maxResponseBody) в outputs.
func parseResponse(resp *http.Response) (*Response, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any = string(data)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(data, &parsed); err == nil {
			body = parsed
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return NewResponse(map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}), nil
}

// HTTPError — ответ со статусом >= 400.
type HTTPError struct {
	StatusCode int
	Status     string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// IsHTTPError проверяет, является ли ошибка (или её причина) HTTPError.
func IsHTTPError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}
