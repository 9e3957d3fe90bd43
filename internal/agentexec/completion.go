package agentexec

import (
	"encoding/json"
	"strings"
)

// CompletionStatus is the worker-level outcome scanned out of an agent's
// extracted output, distinct from the Error Classifier's failure taxonomy.
type CompletionStatus string

const (
	CompletionCompleted CompletionStatus = "COMPLETED"
	CompletionFailed    CompletionStatus = "FAILED"
	CompletionUnknown   CompletionStatus = "UNKNOWN"
)

// completionKeywords are scanned, in order, when no structured status object
// is present in the output.
var completionKeywords = []string{"completed", "successfully", "created file", "wrote file"}

// DetectCompletion scans extracted output for a JSON object carrying a
// "status" field of COMPLETED or FAILED. Failing that it falls back to a
// keyword scan, and failing that reports UNKNOWN — callers treat UNKNOWN as
// success only when the process exit code was 0.
func DetectCompletion(output string, exitCode int) CompletionStatus {
	if status, ok := scanStatusObject(output); ok {
		return status
	}

	lower := strings.ToLower(output)
	for _, kw := range completionKeywords {
		if strings.Contains(lower, kw) {
			return CompletionCompleted
		}
	}

	return CompletionUnknown
}

// scanStatusObject looks for any JSON object substring carrying a "status"
// field, scanning left to right for a balanced {...} span starting at each
// '{' until one decodes with a recognized status.
func scanStatusObject(output string) (CompletionStatus, bool) {
	for i := 0; i < len(output); i++ {
		if output[i] != '{' {
			continue
		}
		end := matchingBrace(output, i)
		if end < 0 {
			continue
		}
		var probe struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(output[i:end+1]), &probe); err != nil {
			continue
		}
		switch strings.ToUpper(probe.Status) {
		case string(CompletionCompleted):
			return CompletionCompleted, true
		case string(CompletionFailed):
			return CompletionFailed, true
		}
	}
	return "", false
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
