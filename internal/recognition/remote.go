package recognition

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultInferenceTimeout = 10 * time.Second
	maxInferenceRetries     = 3
	initialRetryDelay       = 200 * time.Millisecond
)

// InferenceError represents a non-2xx answer from an inference endpoint.
type InferenceError struct {
	StatusCode int
	Body       string
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference server error: HTTP %d: %s", e.StatusCode, e.Body)
}

// RemoteClient posts raw image bytes to an HTTP inference endpoint.
type RemoteClient struct {
	url        string
	httpClient *http.Client
}

// NewRemoteClient creates a client for endpoint url.
func NewRemoteClient(url string, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = defaultInferenceTimeout
	}
	return &RemoteClient{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type encodeResponse struct {
	Encoding []float64 `json:"encoding"`
}

// RemoteFaceEncoder implements FaceEncoder over HTTP. The endpoint answers
// {"encoding": [float, ...]}.
type RemoteFaceEncoder struct {
	client *RemoteClient
}

// NewRemoteFaceEncoder creates a face encoder backed by url.
func NewRemoteFaceEncoder(url string, timeout time.Duration) *RemoteFaceEncoder {
	return &RemoteFaceEncoder{client: NewRemoteClient(url, timeout)}
}

// Encode returns the face embedding of image.
func (e *RemoteFaceEncoder) Encode(ctx context.Context, image []byte) ([]float64, error) {
	var resp encodeResponse
	if err := e.client.post(ctx, image, &resp); err != nil {
		return nil, err
	}
	if len(resp.Encoding) == 0 {
		return nil, ErrEmptyEncoding
	}
	return resp.Encoding, nil
}

// RemoteCoverClassifier implements CoverClassifier over HTTP. The endpoint
// answers {"label": "...", "confidence": 0.93}.
type RemoteCoverClassifier struct {
	client *RemoteClient
}

// NewRemoteCoverClassifier creates a cover classifier backed by url.
func NewRemoteCoverClassifier(url string, timeout time.Duration) *RemoteCoverClassifier {
	return &RemoteCoverClassifier{client: NewRemoteClient(url, timeout)}
}

// Classify returns the predicted cover label for image.
func (c *RemoteCoverClassifier) Classify(ctx context.Context, image []byte) (*Classification, error) {
	var resp Classification
	if err := c.client.post(ctx, image, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RemoteClient) post(ctx context.Context, image []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxInferenceRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(initialRetryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		lastErr = c.doPost(ctx, image, out)
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *RemoteClient) doPost(ctx context.Context, image []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &InferenceError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isRetryableError(err error) bool {
	if ie, ok := err.(*InferenceError); ok {
		return ie.StatusCode >= 500 || ie.StatusCode == http.StatusTooManyRequests
	}
	return false
}
