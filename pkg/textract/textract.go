package textract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// Sentinel errors callers can branch on.
var (
	ErrNotFound          = errors.New("document not found")
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

var (
	textExtensions = map[string]struct{}{".txt": {}, ".md": {}, ".rtf": {}}
	ocrExtensions  = map[string]struct{}{
		".pdf": {}, ".docx": {},
		".png": {}, ".jpg": {}, ".jpeg": {}, ".tiff": {}, ".bmp": {},
	}
)

// Config points the client at an external extraction API.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client extracts plain text from uploaded documents. Text files are read
// directly; PDFs and images are delegated to an HTTP extraction API that
// accepts a multipart 'file' upload and answers JSON with a 'text' field.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New constructs a client. An empty endpoint disables the remote backend;
// only direct text reads remain available.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// Extract returns the text content of the file at path.
// Missing files map to ErrNotFound; formats neither readable locally nor
// supported by the remote backend map to ErrUnsupportedFormat.
func (c *Client) Extract(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", ErrNotFound
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return "", ErrUnsupportedFormat
	}

	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := textExtensions[ext]; ok {
		return c.readPlainText(path)
	}
	if _, ok := ocrExtensions[ext]; ok {
		if c.endpoint == "" {
			return "", fmt.Errorf("%w: no extraction backend configured for %s", ErrUnsupportedFormat, ext)
		}
		return c.callAPI(ctx, path)
	}

	// Unknown extension: try a UTF-8 read before giving up.
	text, err := c.readPlainText(path)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	return text, nil
}

func (c *Client) readPlainText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read document: %w", err)
	}
	if !utf8.Valid(raw) {
		raw = bytes.ToValidUTF8(raw, nil)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (c *Client) callAPI(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("open document: %w", err)
	}
	defer file.Close() //nolint:errcheck

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("build extraction request: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call extraction api: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusUnsupportedMediaType {
		return "", ErrUnsupportedFormat
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("extraction api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode extraction response: %w", err)
	}
	if payload.Text == nil {
		return "", fmt.Errorf("extraction response missing text field")
	}
	return strings.TrimSpace(*payload.Text), nil
}
