package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const maxErrorBody = 4 << 10

// Client posts images to the pipeline with a script bearer token.
type Client struct {
	http       *http.Client
	url        string
	token      string
	attempts   int
	retryDelay time.Duration
}

// NewClient builds a client from cfg.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		url:        cfg.DetectURL(),
		token:      cfg.Token,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
	}
}

// SubmitFile reads path, retrying while it cannot be opened, and posts it.
func (c *Client) SubmitFile(ctx context.Context, path string) (Response, error) {
	data, err := c.read(ctx, path)
	if err != nil {
		return Response{}, err
	}
	return c.Submit(ctx, filepath.Base(path), data)
}

// Submit posts one image as the multipart "image" field.
func (c *Client) Submit(ctx context.Context, filename string, data []byte) (Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return Response{}, fmt.Errorf("build form: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return Response{}, fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Response{}, fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("post %s: %w", filename, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Response{}, fmt.Errorf("%w: %s: status %d: %s", ErrRejected, filename, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode response for %s: %w", filename, err)
	}
	return out, nil
}

// read opens path up to c.attempts times. Writers on some platforms hold an
// exclusive lock while the file is being produced.
func (c *Client) read(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if os.IsNotExist(err) {
			return nil, err
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrLocked, path, c.attempts, lastErr)
}
