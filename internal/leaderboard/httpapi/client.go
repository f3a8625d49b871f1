package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/tuirace/internal/leaderboard"
	"github.com/verte-zerg/tuirace/internal/model"
)

// Client is a leaderboard.Backend talking to a remote Server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Top implements leaderboard.Backend.
func (c *Client) Top(ctx context.Context, field model.RankField, n int) ([]model.LeaderboardEntry, error) {
	q := url.Values{}
	q.Set("sort", string(field))
	q.Set("limit", strconv.Itoa(n))
	var resp entriesResponse
	status, err := c.do(ctx, http.MethodGet, "/api/entries?"+q.Encode(), nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status)
	}
	return resp.Entries, nil
}

// Get implements leaderboard.Backend.
func (c *Client) Get(ctx context.Context, key string) (model.LeaderboardEntry, bool, error) {
	var entry model.LeaderboardEntry
	status, err := c.do(ctx, http.MethodGet, "/api/entries/"+url.PathEscape(key), nil, &entry)
	if err != nil {
		return model.LeaderboardEntry{}, false, err
	}
	switch status {
	case http.StatusOK:
		return entry, true, nil
	case http.StatusNotFound:
		return model.LeaderboardEntry{}, false, nil
	}
	return model.LeaderboardEntry{}, false, statusError(status)
}

// Create implements leaderboard.Backend.
func (c *Client) Create(ctx context.Context, entry model.LeaderboardEntry) error {
	body := entryRequest{
		DisplayName:       entry.DisplayName,
		Rating:            entry.Rating,
		PersonalBestSpeed: entry.PersonalBestSpeed,
	}
	status, err := c.do(ctx, http.MethodPost, "/api/entries", body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return statusError(status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to reach leaderboard: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort body close.
			_ = cerr
		}
	}()
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func statusError(status int) error {
	switch status {
	case http.StatusConflict:
		return leaderboard.ErrNameTaken
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", leaderboard.ErrPermission, status)
	}
	return fmt.Errorf("unexpected leaderboard status %d", status)
}
