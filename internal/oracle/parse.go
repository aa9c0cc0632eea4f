package oracle

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const codeFence = "```"

// extractJSON pulls the first JSON object out of a model response,
// tolerating markdown fences and surrounding prose.
func extractJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if start := strings.Index(raw, codeFence); start != -1 {
		rest := raw[start+len(codeFence):]
		if end := strings.Index(rest, codeFence); end != -1 {
			block := strings.TrimLeft(rest[:end], "\r\n")
			// Drop a language tag line like "json".
			if idx := strings.Index(block, "\n"); idx != -1 {
				first := strings.TrimSpace(block[:idx])
				if first != "" && !strings.ContainsAny(first, "{[") {
					block = block[idx+1:]
				}
			}
			if obj, ok := extractObject(block); ok {
				return obj, true
			}
		}
	}
	return extractObject(raw)
}

func extractObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
			} else if ch == '\\' {
				escape = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// parseDecision validates and decodes one decision object:
// {"direction": "...", "confidence": 0-100, "rationale": "..."}.
func parseDecision(oracleName, raw string) (Decision, error) {
	obj, ok := extractJSON(raw)
	if !ok || !gjson.Valid(obj) {
		return Decision{}, fmt.Errorf("no JSON object in response")
	}
	parsed := gjson.Parse(obj)

	dirField := parsed.Get("direction")
	if !dirField.Exists() {
		// Some models answer with "decision" or "action" instead.
		for _, alt := range []string{"decision", "action", "signal"} {
			if f := parsed.Get(alt); f.Exists() {
				dirField = f
				break
			}
		}
	}
	if !dirField.Exists() || strings.TrimSpace(dirField.String()) == "" {
		return Decision{}, fmt.Errorf("missing direction field")
	}

	conf := parsed.Get("confidence").Float()
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}

	rationale := strings.TrimSpace(parsed.Get("rationale").String())
	if rationale == "" {
		rationale = strings.TrimSpace(parsed.Get("reasoning").String())
	}

	return Decision{
		Oracle:     oracleName,
		Direction:  NormalizeDirection(dirField.String()),
		Confidence: conf,
		Rationale:  rationale,
	}, nil
}
