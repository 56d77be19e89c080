package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sablehq/sable/internal/llm"
)

const (
	fetchTimeout  = 30 * time.Second
	fetchMaxBytes = 512 * 1024
)

// WebFetchTool retrieves a URL and returns the response body as text.
type WebFetchTool struct {
	client *http.Client
	limits OutputLimits
}

func NewWebFetchTool(limits OutputLimits) *WebFetchTool {
	return &WebFetchTool{
		client: &http.Client{Timeout: fetchTimeout},
		limits: limits,
	}
}

func (t *WebFetchTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WebFetchToolName,
		Description: "Fetch a URL over HTTP(S) and return the response body as text.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "URL to fetch (http or https)",
				},
			},
			"required":             []string{"url"},
			"additionalProperties": false,
		},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "parse arguments: %v", err)
	}
	if a.URL == "" {
		return "", NewToolError(ErrInvalidParams, "url is required")
	}
	if !strings.HasPrefix(a.URL, "http://") && !strings.HasPrefix(a.URL, "https://") {
		return "", NewToolErrorf(ErrInvalidParams, "unsupported URL scheme: %s", a.URL)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", a.URL, nil)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "bad URL: %v", err)
	}
	req.Header.Set("User-Agent", "sable/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", NewToolErrorf(ErrTimeout, "fetch %s timed out", a.URL)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "fetch %s: %v", a.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", NewToolErrorf(ErrExecutionFailed, "fetch %s: HTTP %d", a.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "read %s: %v", a.URL, err)
	}

	out, _ := truncateOutput(string(body), t.limits.MaxOutputBytes)
	return out, nil
}
