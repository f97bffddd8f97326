package browser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Session represents one isolated browser session on the agent service.
type Session struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ConnectURL string `json:"connectUrl,omitempty"`
}

// StepEvent is one intermediate action the agent took during a run.
type StepEvent struct {
	Index      int    `json:"index"`
	Action     string `json:"action"`
	URL        string `json:"url,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

// StepFunc observes one step event during a run.
type StepFunc func(ctx context.Context, step StepEvent) error

// RunRequest describes one task run on an existing session.
type RunRequest struct {
	Task         string          `json:"task"`
	ResultSchema json.RawMessage `json:"result_schema,omitempty"`
}

// RunResult is the final payload of a run. Text holds the normalized
// textual result; Raw preserves the service's original payload.
type RunResult struct {
	Text string
	Raw  json.RawMessage
}

// Client drives browser sessions on the remote agent service.
type Client interface {
	CreateSession(ctx context.Context, headless bool) (*Session, error)
	Run(ctx context.Context, sessionID string, req RunRequest, onStep StepFunc) (*RunResult, error)
	ReleaseSession(ctx context.Context, sessionID string) error
}

// RealClient implements Client against the agent service's HTTP API.
// Runs stream NDJSON: zero or more "step" events, then one terminal
// "result" or "error" event.
type RealClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient returns a RealClient for the service at baseURL.
// Timeouts are owned by the service side; runs can be long.
func NewClient(baseURL, apiKey string) *RealClient {
	return &RealClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

func (c *RealClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// CreateSession allocates a fresh, isolated browser session.
func (c *RealClient) CreateSession(ctx context.Context, headless bool) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/sessions", map[string]bool{"headless": headless})
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create session: %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// runEvent is one NDJSON line of a run stream.
type runEvent struct {
	Type       string          `json:"type"`
	Index      int             `json:"index"`
	Action     string          `json:"action"`
	URL        string          `json:"url"`
	Screenshot string          `json:"screenshot"`
	Output     json.RawMessage `json:"output"`
	Error      string          `json:"error"`
}

// Run executes one task on a session, invoking onStep synchronously
// for every step event, and returns the normalized final result.
func (c *RealClient) Run(ctx context.Context, sessionID string, runReq RunRequest, onStep StepFunc) (*RunResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/run", runReq)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run task: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("run task: %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var ev runEvent
			if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &ev); jsonErr != nil {
				return nil, fmt.Errorf("decode run event: %w", jsonErr)
			}

			switch ev.Type {
			case "step":
				if onStep != nil {
					step := StepEvent{Index: ev.Index, Action: ev.Action, URL: ev.URL, Screenshot: ev.Screenshot}
					if stepErr := onStep(ctx, step); stepErr != nil {
						return nil, fmt.Errorf("step observer: %w", stepErr)
					}
				}
			case "result":
				return &RunResult{Text: finalResultText(ev.Output), Raw: ev.Output}, nil
			case "error":
				return nil, fmt.Errorf("agent run failed: %s", ev.Error)
			}
		}

		if err == io.EOF {
			return nil, fmt.Errorf("run stream ended without a result event")
		}
		if err != nil {
			return nil, fmt.Errorf("read run stream: %w", err)
		}
	}
}

// ReleaseSession tears down a session and its browser context.
func (c *RealClient) ReleaseSession(ctx context.Context, sessionID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("release session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// A session that is already gone counts as released.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("release session: %s: %s", resp.Status, readErrorBody(resp.Body))
	}
	return nil
}

// finalResultText normalizes the service's final payload, whose shape
// is not uniform across agent kinds. Strategies in order: a plain JSON
// string, a result/completion/content/text field, then the compact
// JSON text itself.
func finalResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"result", "completion", "content", "text"} {
			val, ok := obj[key]
			if !ok {
				continue
			}
			var nested string
			if err := json.Unmarshal(val, &nested); err == nil {
				return nested
			}
			return string(val)
		}
	}

	return string(raw)
}

// readErrorBody extracts a short error message from a failed response.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
