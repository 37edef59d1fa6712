// Package upstream is the HTTP client for the Z.ai chat backend. It speaks
// the backend's browser-facing API: streaming chat completions, the model
// catalog, anonymous auth, and file uploads.
package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBase is the production backend origin.
const DefaultBase = "https://chat.z.ai"

// browserHeaders mimics the web client; the backend rejects requests that
// don't look like the browser frontend.
var browserHeaders = map[string]string{
	"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36",
	"Accept":             "*/*",
	"Accept-Language":    "zh-CN,zh;q=0.9",
	"X-FE-Version":       "prod-fe-1.0.76",
	"sec-ch-ua":          `"Not;A=Brand";v="99", "Edge";v="139"`,
	"sec-ch-ua-mobile":   "?0",
	"sec-ch-ua-platform": `"Windows"`,
}

// Config configures a Client.
type Config struct {
	// Base is the backend origin. Defaults to DefaultBase.
	Base string

	// HTTPClient is the transport used for all calls. Defaults to a client
	// with a 5-minute timeout; chat responses can stream for a long time,
	// especially with thinking blocks.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client calls the Z.ai backend. Safe for concurrent use.
type Client struct {
	base       string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Client from config, applying defaults for unset fields.
func New(config Config) *Client {
	base := strings.TrimSuffix(config.Base, "/")
	if base == "" {
		base = DefaultBase
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:       base,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Base returns the configured backend origin.
func (c *Client) Base() string {
	return c.base
}

// setHeaders applies the browser header set plus per-request auth and
// referer headers.
func (c *Client) setHeaders(req *http.Request, chatID, token string) {
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Origin", c.base)
	if chatID != "" {
		req.Header.Set("Referer", fmt.Sprintf("%s/c/%s", c.base, chatID))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// ChatCompletions issues a streaming chat request and returns the raw
// response. The caller owns the body and must close it; a non-200 status is
// returned as-is so the caller can inspect it for credential health.
func (c *Client) ChatCompletions(ctx context.Context, payload []byte, chatID, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("could not create chat request: %w", err)
	}
	c.setHeaders(req, chatID, token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return resp, nil
}

// ModelsResponse is the backend's model catalog envelope.
type ModelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// ModelInfo is one catalog entry. The backend nests display metadata under
// an OpenWebUI-style info object; only the fields the relay needs are
// decoded.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Info struct {
		// IsActive defaults to true when the backend omits it.
		IsActive  *bool `json:"is_active"`
		CreatedAt int64 `json:"created_at"`
	} `json:"info"`
}

// Active reports whether the catalog entry is enabled.
func (m ModelInfo) Active() bool {
	return m.Info.IsActive == nil || *m.Info.IsActive
}

// Models fetches the backend model catalog.
func (c *Client) Models(ctx context.Context, token string) (*ModelsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/models", nil)
	if err != nil {
		return nil, fmt.Errorf("could not create models request: %w", err)
	}
	c.setHeaders(req, "", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Op: "models"}
	}

	var models ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("could not decode models response: %w", err)
	}
	return &models, nil
}

// AnonymousToken fetches a guest credential from the backend auth endpoint.
func (c *Client) AnonymousToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/auths/", nil)
	if err != nil {
		return "", fmt.Errorf("could not create auth request: %w", err)
	}
	c.setHeaders(req, "", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("could not decode auth response: %w", err)
	}
	if auth.Token == "" {
		return "", &StatusError{Status: resp.StatusCode, Op: "auths"}
	}
	return auth.Token, nil
}

// UploadImage decodes a base64 data URL and uploads it as a file, returning
// the backend file reference "{id}_{filename}" used in chat payloads.
func (c *Client) UploadImage(ctx context.Context, dataURL, chatID, token string) (string, error) {
	header, encoded, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(dataURL, "data:") {
		return "", fmt.Errorf("not a data URL")
	}

	mimeType := "image/jpeg"
	if meta := strings.TrimPrefix(header, "data:"); meta != "" {
		mimeType = strings.SplitN(meta, ";", 2)[0]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("could not decode image data: %w", err)
	}

	filename := uuid.NewString()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreatePart(map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)},
		"Content-Type":        {mimeType},
	})
	if err != nil {
		return "", fmt.Errorf("could not create multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("could not write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("could not finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/files/", &body)
	if err != nil {
		return "", fmt.Errorf("could not create upload request: %w", err)
	}
	c.setHeaders(req, chatID, token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		c.logger.Debug("image upload rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(text)),
		)
		return "", &StatusError{Status: resp.StatusCode, Op: "files"}
	}

	var uploaded struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("could not decode upload response: %w", err)
	}
	return uploaded.ID + "_" + uploaded.Filename, nil
}
