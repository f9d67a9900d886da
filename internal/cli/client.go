package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/me/framesched/pkg/model"
)

// Client is an HTTP client for the framesched results API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a results API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// do performs an HTTP request and returns the parsed envelope.
func (c *Client) do(method, path string) (*apiResponse, error) {
	target := c.BaseURL + path

	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.Logger.Debug("HTTP request", "method", method, "url", target)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "bytes", len(respBody))

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(respBody))
	}

	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}

	return &apiResp, nil
}

// Get performs a GET request.
func (c *Client) Get(path string) (*apiResponse, error) {
	return c.do("GET", path)
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) (*apiResponse, error) {
	return c.do("DELETE", path)
}

// ListRuns fetches one page of stored runs.
func (c *Client) ListRuns(opts model.ListOptions) ([]*model.Run, int, error) {
	path := fmt.Sprintf("/api/v1/runs/?limit=%d&offset=%d", opts.Limit, opts.Offset)
	if opts.Status != "" {
		path += "&status=" + string(opts.Status)
	}
	resp, err := c.Get(path)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	var runs []*model.Run
	if err := json.Unmarshal(resp.Data, &runs); err != nil {
		return nil, 0, fmt.Errorf("parse response: %w", err)
	}
	total := len(runs)
	if resp.Pagination != nil {
		total = resp.Pagination.Total
	}
	return runs, total, nil
}

// GetRun fetches a run, its full history and its scheduled boxes.
func (c *Client) GetRun(id string) (*model.Run, []model.HistoryRecord, map[string][]model.ScheduledBox, error) {
	base := "/api/v1/runs/" + url.PathEscape(id)

	resp, err := c.Get(base)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get run: %w", err)
	}
	var run model.Run
	if err := json.Unmarshal(resp.Data, &run); err != nil {
		return nil, nil, nil, fmt.Errorf("parse run: %w", err)
	}

	var history []model.HistoryRecord
	for offset := 0; ; {
		resp, err := c.Get(fmt.Sprintf("%s/history?limit=1000&offset=%d", base, offset))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("get history: %w", err)
		}
		var page []model.HistoryRecord
		if err := json.Unmarshal(resp.Data, &page); err != nil {
			return nil, nil, nil, fmt.Errorf("parse history: %w", err)
		}
		history = append(history, page...)
		offset += len(page)
		if len(page) == 0 || resp.Pagination == nil || !resp.Pagination.HasMore {
			break
		}
	}

	resp, err = c.Get(base + "/boxes")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get boxes: %w", err)
	}
	var boxes map[string][]model.ScheduledBox
	if err := json.Unmarshal(resp.Data, &boxes); err != nil {
		return nil, nil, nil, fmt.Errorf("parse boxes: %w", err)
	}
	return &run, history, boxes, nil
}

// DeleteRun removes a stored run.
func (c *Client) DeleteRun(id string) error {
	if _, err := c.Delete("/api/v1/runs/" + url.PathEscape(id)); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
