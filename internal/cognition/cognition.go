// Package cognition holds the LLM-backed reasoning calls: daily planning,
// reactive replanning, reflection, importance scoring and activity
// summarization. Every structured call validates the model output and, when
// it is malformed, re-prompts once with a corrective message before failing
// with ErrMalformedOutput.
package cognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"smalltown/internal/llm"
	"smalltown/internal/logging"
)

// ErrMalformedOutput is returned when the model's output fails validation
// twice (original response plus one corrective re-parse).
var ErrMalformedOutput = errors.New("cognition: malformed model output")

// extractJSON finds the first JSON object or array in a response, tolerating
// markdown fences and surrounding prose.
func extractJSON(response string) string {
	objStart := strings.IndexByte(response, '{')
	arrStart := strings.IndexByte(response, '[')

	start := objStart
	open, close := byte('{'), byte('}')
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
		open, close = '[', ']'
	}
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

// parseInto extracts and unmarshals the first JSON value in response.
func parseInto(response string, out any) error {
	raw := extractJSON(response)
	if raw == "" {
		return fmt.Errorf("no JSON found in response")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("JSON parse failed: %w", err)
	}
	return nil
}

// completeJSON runs the request, parses the response into out, and on
// failure re-prompts once with the malformed output attached. validate, when
// non-nil, runs after each successful parse; a validation error also counts
// as malformed.
func completeJSON(ctx context.Context, client llm.Client, req llm.Request, out any, validate func() error) error {
	text, err := client.Complete(ctx, req)
	if err != nil {
		return err
	}

	parseErr := parseInto(text, out)
	if parseErr == nil && validate != nil {
		parseErr = validate()
	}
	if parseErr == nil {
		return nil
	}

	logging.Get(logging.CategoryCognition).Warn("Output failed validation, re-prompting: %v", parseErr)

	req.Messages = append(req.Messages,
		llm.Message{Role: llm.RoleAssistant, Content: text},
		llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Your previous response could not be parsed (%v). Respond again with ONLY the requested JSON, no prose, no markdown fences.",
			parseErr)},
	)
	text, err = client.Complete(ctx, req)
	if err != nil {
		return err
	}

	parseErr = parseInto(text, out)
	if parseErr == nil && validate != nil {
		parseErr = validate()
	}
	if parseErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, parseErr)
	}
	return nil
}
