package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/llm"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/resilience"
)

// chatJSON sends one chat-completions request constrained to a JSON
// object, validates the content against schema and returns the cleaned
// JSON bytes. Rate limiting, retries and breaker live here so the three
// capability methods stay declarative.
func (c *Client) chatJSON(ctx context.Context, operation, system, user string, schema map[string]any) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	var raw []byte
	err := c.exec.Execute(ctx, operation, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var postErr error
		raw, postErr = c.post(ctx, endpoint, body)
		return postErr
	})
	if err != nil {
		c.log.Error("llm."+operation+".http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode completions response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completions response")
	}

	content := []byte(llm.StripCodeFences(cc.Choices[0].Message.Content))
	if err := llm.ValidateJSONAgainstSchema(schema, content); err != nil {
		c.log.Error("llm."+operation+".schema_validation_failed",
			"req_id", rid, "error", err, "content", string(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	c.log.Info("llm."+operation+".ok",
		"req_id", rid,
		"model", c.cfg.Model,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// network-level failures are worth a retry
		return nil, resilience.Transient(fmt.Errorf("completions http error: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("completions response body close error", "error", cerr)
		}
	}()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, resilience.Transient(fmt.Errorf("read completions response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("completions status %d: %s", resp.StatusCode, buf.String())
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.Transient(err)
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
