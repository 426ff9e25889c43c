package llm

import (
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ParseJSON decodes a model response into v. It tolerates markdown code
// fences, trailing commas and prose around the JSON payload.
func ParseJSON(text string, v any) error {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return errors.New("empty response")
	}

	candidates := []string{text, trailingComma.ReplaceAllString(text, "$1")}
	if extracted := extractJSON(text); extracted != "" {
		candidates = append(candidates, extracted, trailingComma.ReplaceAllString(extracted, "$1"))
	}

	var err error
	for _, c := range candidates {
		if err = json.Unmarshal([]byte(c), v); err == nil {
			return nil
		}
	}
	return err
}

// ParseJSONResponse parses an object response, returning nil if it cannot be
// recovered.
func ParseJSONResponse(text string) map[string]any {
	var result map[string]any
	if err := ParseJSON(text, &result); err != nil {
		if strings.TrimSpace(text) != "" {
			slog.Debug("failed to parse LLM response as JSON", "error", err)
		}
		return nil
	}
	return result
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx <= 1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}

// extractJSON returns the span from the first opening brace or bracket to
// the last matching closer.
func extractJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}
