package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client wraps the Anthropic API for task partitioning and result summarization.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// complete sends one system+user exchange and returns the response text
// with markdown fencing stripped.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	return stripFences(text), nil
}

// stripFences removes markdown code fencing if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// buildPartitionPrompt constructs the system and user prompts for
// splitting a scouted element catalog into distinct test tasks.
func buildPartitionPrompt(url, catalog string) (system string, user string) {
	system = `You split a catalog of a web page's interactive elements into distinct testing tasks. Return ONLY a JSON array of task strings.

Rules:
- Produce 6 to 8 tasks total
- Each task must be self-contained and start with explicit navigation to the page URL (e.g. "Navigate to <url>, then ...")
- Each task targets a distinct element or section; tasks must not overlap
- Tasks must be specific and actionable for a browser automation agent (what to click, type, or verify)
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Page URL: ")
	sb.WriteString(url)
	sb.WriteString("\n\nElement catalog:\n\n")
	sb.WriteString(catalog)
	user = sb.String()
	return
}

// PartitionCatalog asks the model to split an element catalog into 6-8
// self-contained test task strings for the given URL.
func (c *Client) PartitionCatalog(ctx context.Context, url, catalog string) ([]string, error) {
	systemPrompt, userPrompt := buildPartitionPrompt(url, catalog)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 2048)
	if err != nil {
		return nil, err
	}

	// Models sometimes wrap the array in prose; fall back to the first
	// [...] span before giving up.
	var tasks []string
	if err := json.Unmarshal([]byte(text), &tasks); err != nil {
		span := arraySpan(text)
		if span == "" {
			return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
		}
		if err := json.Unmarshal([]byte(span), &tasks); err != nil {
			return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
		}
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("LLM returned an empty task list")
	}
	return tasks, nil
}

// arraySpan returns the substring from the first '[' to the last ']',
// or "" if the text contains no such span.
func arraySpan(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// ExecutionRecord is the slice of an execution the summarizer needs.
type ExecutionRecord struct {
	ID      string
	Task    string
	Tag     string
	Status  string
	Passed  *bool
	Message string
	Error   string
}

// ClassifiedIssue is one issue the model surfaced from test results.
type ClassifiedIssue struct {
	ExecutionID string `json:"execution_id"`
	Severity    string `json:"severity"`
	Risk        string `json:"risk"`
	Detail      string `json:"detail"`
	Advice      string `json:"advice"`
}

// SessionSummary is the model's classification of a session's results.
type SessionSummary struct {
	Summary string            `json:"summary"`
	Issues  []ClassifiedIssue `json:"issues"`
}

// buildSummarizePrompt constructs the system and user prompts for
// classifying execution results into a severity-ranked issue list.
func buildSummarizePrompt(records []ExecutionRecord) (system string, user string) {
	system = `You are a QA analyst reviewing automated browser test results for a website. Classify the results into real issues and return a JSON object with exactly two fields:

- "summary": a concise 2-4 sentence assessment of the site's state, leading with the most serious findings
- "issues": an array of issue objects, each with:
  - "execution_id": the id of the test execution that revealed the issue
  - "severity": one of "high", "medium", "low"
  - "risk": a short phrase naming what is at risk
  - "detail": a specific, detailed description of the problem observed
  - "advice": a concrete recommendation for fixing it

Rules:
- Prioritize failed and errored executions
- Only report real issues: broken functionality, technical errors, accessibility problems, performance problems
- Do not invent issues for passing tests; an empty issues array is a valid answer
- Be specific: name the element, page section, or action involved
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Test execution results:\n\n")
	for _, r := range records {
		fmt.Fprintf(&sb, "- execution_id: %s\n  task: %s\n  tag: %s\n  status: %s\n", r.ID, r.Task, r.Tag, r.Status)
		if r.Passed != nil {
			fmt.Fprintf(&sb, "  passed: %t\n", *r.Passed)
		}
		if r.Message != "" {
			fmt.Fprintf(&sb, "  message: %s\n", r.Message)
		}
		if r.Error != "" {
			fmt.Fprintf(&sb, "  error: %s\n", r.Error)
		}
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// SummarizeExecutions sends execution results to the LLM and returns a
// severity-classified summary.
func (c *Client) SummarizeExecutions(ctx context.Context, records []ExecutionRecord) (*SessionSummary, error) {
	systemPrompt, userPrompt := buildSummarizePrompt(records)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 4096)
	if err != nil {
		return nil, err
	}

	var summary SessionSummary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	return &summary, nil
}
