// Package facematch finds the photos of an event that contain the person in
// an uploaded selfie, by delegating face recognition to an external inference
// service and reconciling its answer against the photo catalog.
package facematch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Common errors for inference calls.
var (
	// ErrUnavailable is returned when the inference service cannot be
	// reached or answers with a non-success status.
	ErrUnavailable = errors.New("inference service unavailable")

	// ErrNoMatch is returned when the service answers successfully but
	// recognizes the selfie in none of the candidate photos.
	ErrNoMatch = errors.New("no matching photos found")
)

const defaultTimeout = 30 * time.Second

// Client asks an inference service which candidate photos contain the face
// in the staged selfie.
type Client interface {
	// MatchFaces returns the filenames of matching photos. The selfie and
	// the candidate photos must already be staged where the service can
	// read them.
	MatchFaces(ctx context.Context, selfiePath string) ([]string, error)
}

// HTTPClient is a Client backed by the face-recognition HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an HTTPClient for the given base URL. A zero timeout
// falls back to the default, so a hung inference process can never pin a
// request forever.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// filterRequest is the payload of the filter-photos endpoint.
type filterRequest struct {
	SelfiePath string `json:"selfiePath"`
}

// filterResponse is the answer of the filter-photos endpoint.
type filterResponse struct {
	FilteredImages []struct {
		Name string `json:"name"`
	} `json:"filteredImages"`
}

// MatchFaces posts the staged selfie path to the inference service and
// returns the matched filenames. Transport and server failures map to
// ErrUnavailable, an empty answer to ErrNoMatch.
func (c *HTTPClient) MatchFaces(ctx context.Context, selfiePath string) ([]string, error) {
	body, err := json.Marshal(filterRequest{SelfiePath: normalizePath(selfiePath)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/filter-photos", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create filter request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, snippet)
	}

	var parsed filterResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}

	names := make([]string, 0, len(parsed.FilteredImages))
	for _, img := range parsed.FilteredImages {
		if img.Name == "" {
			continue
		}
		names = append(names, img.Name)
	}
	if len(names) == 0 {
		return nil, ErrNoMatch
	}
	return names, nil
}

// normalizePath doubles backslashes so Windows paths survive the service's
// own unescaping. Forward-slash paths pass through untouched.
func normalizePath(path string) string {
	if !strings.Contains(path, `\`) {
		return path
	}
	return strings.ReplaceAll(path, `\`, `\\`)
}
