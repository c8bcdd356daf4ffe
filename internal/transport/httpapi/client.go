package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
)

// Client delivers messages to other nodes over HTTP. It implements
// node.Transport.
type Client struct {
	http    *http.Client
	replyTo string
}

// NewClient creates a client whose requests time out after timeout. replyTo
// is sent with every message so receivers learn this node's address.
func NewClient(timeout time.Duration, replyTo string) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		replyTo: replyTo,
	}
}

// Deliver posts msg to the node listening at address.
func (c *Client) Deliver(ctx context.Context, address string, msg chat.Message) error {
	body, err := json.Marshal(NewPayload(msg, c.replyTo))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+address+"/receive", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("peer responded %s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("peer responded %s", resp.Status)
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return nil
}

// Status fetches GET /status from the node at address.
func (c *Client) Status(ctx context.Context, address string) (StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+"/status", nil)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return StatusResponse{}, fmt.Errorf("peer responded %s", resp.Status)
	}

	var st StatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&st); err != nil {
		return StatusResponse{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}
