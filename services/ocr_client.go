package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sahilchouksey/exam-parser/services/llm"
)

var ErrOCRNotConfigured = errors.New("OCR service is not configured")

// ocrTimeout covers recognition of long scanned papers
const ocrTimeout = 5 * time.Minute

// OCRClient uploads documents to the OCR service, which answers with
// markdown text
type OCRClient struct {
	baseURL string
	http    *http.Client
	keys    *llm.KeyPool
}

// OCRResponse is the body of a successful /ocr/file call
type OCRResponse struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
	Filename  string `json:"filename,omitempty"`
}

// NewOCRClient builds a client for baseURL; keys may be nil for an open service
func NewOCRClient(baseURL string, keys *llm.KeyPool) *OCRClient {
	if keys == nil {
		keys = llm.NewKeyPool()
	}
	return &OCRClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: ocrTimeout},
		keys:    keys,
	}
}

// Enabled is false for a nil client or one without a base URL
func (c *OCRClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// ProcessFile recognizes a PDF or image. A 401, 403 or 429 moves on to the
// next key, at most once per key in the pool.
func (c *OCRClient) ProcessFile(ctx context.Context, content []byte, filename string) (*OCRResponse, error) {
	if !c.Enabled() {
		return nil, ErrOCRNotConfigured
	}

	body, contentType, err := multipartFile(content, filename)
	if err != nil {
		return nil, err
	}

	attempts := c.keys.Len()
	if attempts == 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		key := c.keys.Current()
		resp, err := c.upload(ctx, key, body, contentType)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var statusErr *llm.StatusError
		if !errors.As(err, &statusErr) || !statusErr.Rotatable() || !c.keys.Rotate(key) {
			return nil, err
		}
		log.Printf("OCR: status %d, rotating to next key", statusErr.StatusCode)
	}
	return nil, lastErr
}

func multipartFile(content []byte, filename string) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err == nil {
		_, err = part.Write(content)
	}
	if err == nil {
		err = writer.Close()
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to build OCR upload: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func (c *OCRClient) upload(ctx context.Context, key string, body []byte, contentType string) (*OCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr/file", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCR service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("OCR service error: %w", &llm.StatusError{StatusCode: resp.StatusCode, Body: string(msg)})
	}

	var out OCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode OCR response: %w", err)
	}
	return &out, nil
}

// HealthCheck probes GET /health on the OCR service
func (c *OCRClient) HealthCheck(ctx context.Context) error {
	if !c.Enabled() {
		return ErrOCRNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("OCR health check failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OCR service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
