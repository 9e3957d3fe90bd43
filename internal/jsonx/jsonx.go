// Package jsonx provides lenient, best-effort JSON probing used by the
// Planner and Judge Runners' fallback parsing chain: this package locates a
// plausible JSON object or fenced block inside noisy agent output, and a
// strict encoding/json decode of the whole output is the last candidate.
package jsonx

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// fencedJSONBlock matches a ```json fenced code block.
var fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// fencedAnyBlock matches any fenced code block.
var fencedAnyBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// ExtractObjectWithKeys scans output for the first balanced {...} span that,
// when probed with gjson, has every one of requiredKeys present. Returns
// ("", false) when nothing matches.
func ExtractObjectWithKeys(output string, requiredKeys ...string) (string, bool) {
	for i := 0; i < len(output); i++ {
		if output[i] != '{' {
			continue
		}
		end := matchingBrace(output, i)
		if end < 0 {
			continue
		}
		candidate := output[i : end+1]
		if !gjson.Valid(candidate) {
			continue
		}
		if hasAllKeys(candidate, requiredKeys) {
			return candidate, true
		}
	}
	return "", false
}

// ExtractFencedJSON returns the contents of the first ```json fenced block.
func ExtractFencedJSON(output string) (string, bool) {
	m := fencedJSONBlock.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ExtractAnyFencedBlock returns the contents of the first fenced block of
// any language tag.
func ExtractAnyFencedBlock(output string) (string, bool) {
	m := fencedAnyBlock.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func hasAllKeys(candidate string, keys []string) bool {
	for _, k := range keys {
		if !gjson.Get(candidate, k).Exists() {
			return false
		}
	}
	return true
}

// matchingBrace returns the index of the brace matching the '{' at start,
// respecting string literals, or -1 if unbalanced.
func matchingBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
