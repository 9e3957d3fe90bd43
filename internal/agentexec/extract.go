package agentexec

import (
	"bufio"
	"encoding/json"
	"strings"
)

// Extractor turns one agent kind's raw subprocess stdout into the plain-text
// content an agent actually produced. The set of extractors is fixed and
// closed — adding a new agent kind means adding a KindSpec that picks one of
// these, never adding a new open-ended parsing branch.
type Extractor func(raw []byte) (text string, ok bool)

// ExtractJSONEnvelope handles a kind whose CLI emits a single JSON object
// with {"type": "result", "result": "..."}.
func ExtractJSONEnvelope(raw []byte) (string, bool) {
	var envelope struct {
		Type   string `json:"type"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(bytesTrimmed(raw), &envelope); err != nil {
		return "", false
	}
	if envelope.Type != "result" {
		return "", false
	}
	return envelope.Result, true
}

// ExtractStreamedItemCompleted handles a kind that streams newline-delimited
// JSON records and concatenates every record where type == "item.completed"
// and item.type == "agent_message".
func ExtractStreamedItemCompleted(raw []byte) (string, bool) {
	type item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	type record struct {
		Type string `json:"type"`
		Item item   `json:"item"`
	}

	var b strings.Builder
	found := false
	sc := bufio.NewScanner(trimmedReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type != "item.completed" || rec.Item.Type != "agent_message" {
			continue
		}
		b.WriteString(rec.Item.Text)
		found = true
	}
	return b.String(), found
}

// ExtractStreamedAssistantMessage handles a kind that streams newline-
// delimited JSON messages and concatenates those with role == "assistant".
func ExtractStreamedAssistantMessage(raw []byte) (string, bool) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	var b strings.Builder
	found := false
	sc := bufio.NewScanner(trimmedReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.Role != "assistant" {
			continue
		}
		b.WriteString(msg.Content)
		found = true
	}
	return b.String(), found
}

// ExtractRaw is the universal fallback: the raw bytes, unparsed. Used when a
// kind-specific extractor fails to find any matching record.
func ExtractRaw(raw []byte) (string, bool) {
	return string(raw), true
}

func bytesTrimmed(raw []byte) []byte {
	return []byte(strings.TrimSpace(string(raw)))
}

func trimmedReader(raw []byte) *strings.Reader {
	return strings.NewReader(strings.TrimSpace(string(raw)))
}
