package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Event is one progress record of a final-job run.
type Event struct {
	Run         string   `json:"run,omitempty"`
	Stage       string   `json:"stage"`
	DatasetType string   `json:"dataset_type,omitempty"`
	Argv        []string `json:"argv,omitempty"`
	Status      string   `json:"status"`
	ExitCode    int      `json:"exit_code,omitempty"`
	Error       string   `json:"error,omitempty"`
	DurationMs  int64    `json:"duration_ms,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

const (
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Sink receives run events.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// NullSink drops events.
type NullSink struct{}

func (NullSink) Publish(context.Context, Event) error { return nil }

// Client posts events to the control plane.
type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c == nil || c.BaseURL == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("X-Worker-Token", c.Token)
	}
	cli := c.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("post %s status %s", path, resp.Status)
	}
	return nil
}

func (c *Client) Publish(ctx context.Context, evt Event) error {
	return c.post(ctx, "/api/events", evt)
}

// Options selects and configures a sink backend.
type Options struct {
	Backend         string
	ControlPlaneURL string
	Token           string
	RedisURL        string
	RedisKey        string
	KafkaBrokers    string
	KafkaTopic      string
}

// New builds the sink named by opts.Backend ("none", "http", "redis" or "kafka").
func New(opts Options) (Sink, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "none":
		return NullSink{}, nil
	case "http":
		if opts.ControlPlaneURL == "" {
			return nil, fmt.Errorf("http report backend needs CONTROL_PLANE_URL")
		}
		return &Client{
			BaseURL: strings.TrimRight(opts.ControlPlaneURL, "/"),
			Token:   opts.Token,
			Client:  &http.Client{Timeout: 10 * time.Second},
		}, nil
	case "redis":
		s, err := NewRedisSink(opts.RedisURL, opts.RedisKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "kafka":
		s, err := NewKafkaSink(opts.KafkaBrokers, opts.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown report backend %q", opts.Backend)
	}
}
