// Package transport implements the single-in-flight HTTP sender used
// by the flusher to POST batches to the ingest endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cynexa/collectord/internal/event"
)

// successStatuses is the set of HTTP statuses that count as a
// successful ingest.
var successStatuses = map[int]bool{
	http.StatusOK:       true,
	http.StatusCreated:  true,
	http.StatusAccepted: true,
}

// RejectionError is returned when the endpoint responds with a status
// outside the success set. Body holds at most the first 200 bytes of
// the response, per the logging contract in the error handling design.
type RejectionError struct {
	StatusCode int
	Body       string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("ingest rejected batch: status=%d body=%q", e.StatusCode, e.Body)
}

// Client sends batches to a single ingest URL with an optional bearer
// token. Only one request is ever in flight, which is what keeps the
// spool-before-live ordering trivial for the flusher.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
}

// New builds a Client. connectTimeout bounds the TCP connect (dial);
// requestTimeout bounds the whole round trip including body read.
func New(url, token string, connectTimeout, requestTimeout time.Duration) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
	}
	return &Client{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
	}
}

// Send POSTs batch as JSON. A nil error means the endpoint accepted
// the batch (status in {200,201,202}). Any transport-level failure
// (DNS, connect, timeout, read) and any non-success status both come
// back as a non-nil error; the caller does not need to distinguish
// them to decide whether to spool, but a *RejectionError identifies
// the HTTP-rejection case specifically for logging purposes.
func (c *Client) Send(ctx context.Context, batch *event.Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("transport: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: request failed: %w", err)
	}
	defer resp.Body.Close()

	if successStatuses[resp.StatusCode] {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return &RejectionError{StatusCode: resp.StatusCode, Body: string(body)}
}
