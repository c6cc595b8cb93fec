package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudomics/omicsdash"
)

type apiConfig struct {
	Region       string `json:"region"`
	Bucket       string `json:"bucket"`
	StackName    string `json:"stackName"`
	TotalSamples int    `json:"totalSamples"`
	Simulation   bool   `json:"simulation"`
}

type apiStatus struct {
	Status           omicsdash.RunStatus `json:"status"`
	Message          string              `json:"message"`
	CompletedSamples int                 `json:"completedSamples"`
	TotalSamples     int                 `json:"totalSamples"`
	CostAccrued      float64             `json:"costAccrued"`
}

type apiAck struct {
	Success bool                `json:"success"`
	RunID   string              `json:"runId"`
	Status  omicsdash.RunStatus `json:"status"`
	Message string              `json:"message"`
}

// apiError is a response the facade itself produced. The facade was
// reachable, which matters when deciding whether to fall back to simulation.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(res.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return &apiError{status: res.StatusCode, msg: fmt.Sprintf("%v %v: %v", method, path, apiErr.Error)}
		}
		return &apiError{status: res.StatusCode, msg: fmt.Sprintf("%v %v: %v", method, path, res.Status)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *client) Config(ctx context.Context) (*apiConfig, error) {
	var cfg apiConfig
	if err := c.do(ctx, http.MethodGet, "/api/config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *client) Status(ctx context.Context) (*apiStatus, error) {
	var st apiStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *client) Resources(ctx context.Context) (*omicsdash.ResourceSample, error) {
	var s omicsdash.ResourceSample
	if err := c.do(ctx, http.MethodGet, "/api/resources", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Stats returns (nil, nil) while the facade reports stats as not yet
// available (an empty object), which is a valid state, not an error.
func (c *client) Stats(ctx context.Context) (*omicsdash.VariantStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/stats", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &apiError{status: res.StatusCode, msg: fmt.Sprintf("GET /api/stats: %v", res.Status)}
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(bytes.TrimSpace(body), []byte("{}")) {
		return nil, nil
	}
	var stats omicsdash.VariantStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *client) Start(ctx context.Context) (*apiAck, error) {
	var ack apiAck
	if err := c.do(ctx, http.MethodPost, "/api/start", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *client) Reset(ctx context.Context) (*apiAck, error) {
	var ack apiAck
	if err := c.do(ctx, http.MethodPost, "/api/reset", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}
