// Package httpclient has small generic helpers for JSON REST
// endpoints. Any status outside the allowed set is a hard failure.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func GetResource[T any](ctx context.Context, client *http.Client, baseURL, endpoint string, allowedStatuses []int, header http.Header) (T, error) {
	var zero T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+endpoint, nil)
	if err != nil {
		return zero, fmt.Errorf("couldn't create request for %s: %w", endpoint, err)
	}
	copyHeader(req, header)

	return do[T](client, req, allowedStatuses)
}

func PostResource[T any](ctx context.Context, client *http.Client, baseURL, endpoint string, body any, allowedStatuses []int, header http.Header) (T, error) {
	var zero T

	encoded, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("couldn't encode body for %s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+endpoint, bytes.NewReader(encoded))
	if err != nil {
		return zero, fmt.Errorf("couldn't create request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	copyHeader(req, header)

	return do[T](client, req, allowedStatuses)
}

func do[T any](client *http.Client, req *http.Request, allowedStatuses []int) (T, error) {
	var zero T

	resp, err := client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("couldn't reach %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	allowed := false
	for _, s := range allowedStatuses {
		if resp.StatusCode == s {
			allowed = true
			break
		}
	}
	if !allowed {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return zero, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, req.URL, body)
	}

	var resource T
	if err := json.NewDecoder(resp.Body).Decode(&resource); err != nil {
		return zero, fmt.Errorf("couldn't decode response from %s: %w", req.URL, err)
	}
	return resource, nil
}

func copyHeader(req *http.Request, header http.Header) {
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}
