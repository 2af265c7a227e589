// Package segments implements the segment-store notifier: the client the
// controller uses to tell the storage tier to seal a stream's segments.
package segments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rivulet-io/rivulet/internal/streams"
)

// Notifier requests the storage tier seal a set of segments.
// Implementations do not retry: a failed call fails the caller's whole
// run, and a future run re-derives the identical segment set and repeats
// the call. The storage tier treats sealing an already-sealed segment as
// a no-op, so external retry is safe.
type Notifier interface {
	// SealSegments requests the storage tier seal the given segments of
	// the stream, suspending until the request is acknowledged.
	SealSegments(ctx context.Context, id streams.StreamID, segmentNumbers []int64, authToken string) error
}

// Notifier errors.
var (
	// ErrSegmentStoreUnavailable is returned when the segment store
	// cannot be reached.
	ErrSegmentStoreUnavailable = errors.New("segments: segment store unavailable")

	// ErrUnauthorized is returned when the delegation token is rejected.
	ErrUnauthorized = errors.New("segments: unauthorized")
)

// HTTPError is returned for unexpected segment store responses.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("segments: segment store returned %d: %s", e.StatusCode, e.Message)
}

// RestNotifierConfig holds configuration for the REST notifier.
type RestNotifierConfig struct {
	// URI is the base URL of the segment store admin endpoint.
	// Example: "http://segmentstore:12345"
	URI string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a client with RequestTimeout is used.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for individual HTTP requests.
	// If zero, defaults to 30 seconds.
	RequestTimeout time.Duration
}

// RestNotifier implements Notifier against the segment store's REST
// admin API.
type RestNotifier struct {
	httpClient *http.Client
	baseURL    string
}

// NewRestNotifier creates a new REST notifier client.
func NewRestNotifier(config RestNotifierConfig) (*RestNotifier, error) {
	if config.URI == "" {
		return nil, errors.New("segments: segment store URI is required")
	}

	baseURL := strings.TrimSuffix(config.URI, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if config.RequestTimeout > 0 {
		client.Timeout = config.RequestTimeout
	} else if client.Timeout == 0 {
		client.Timeout = 30 * time.Second
	}

	return &RestNotifier{
		httpClient: client,
		baseURL:    baseURL,
	}, nil
}

// sealRequest is the JSON body of a seal call.
type sealRequest struct {
	Segments []int64 `json:"segments"`
}

// SealSegments posts a seal request for the stream's segments.
func (n *RestNotifier) SealSegments(ctx context.Context, id streams.StreamID, segmentNumbers []int64, authToken string) error {
	path := fmt.Sprintf("/v1/scopes/%s/streams/%s/segments/seal",
		url.PathEscape(id.Scope), url.PathEscape(id.Name))

	data, err := json.Marshal(sealRequest{Segments: segmentNumbers})
	if err != nil {
		return fmt.Errorf("segments: marshal seal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("segments: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSegmentStoreUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("segments: read response: %w", err)
	}

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(body)))
	default:
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
}

var _ Notifier = (*RestNotifier)(nil)
