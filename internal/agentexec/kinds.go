package agentexec

// Claude, Codex, and Gemini are the three agent kinds the engine ships
// with. Each wraps one external CLI in non-interactive, automatic-approval
// mode within a sandboxed tool policy; model selection is passed through
// from configuration, never hardcoded.
const (
	Claude = "claude"
	Codex  = "codex"
	Gemini = "gemini"
)

// DefaultKindSpecs is the fixed, closed set of per-kind invocation specs.
// A new agent kind means adding an entry here, never adding a new parsing
// branch to the extractors.
var DefaultKindSpecs = map[string]KindSpec{
	Claude: {
		Kind:   Claude,
		Binary: "claude",
		BuildArgs: func(model string) []string {
			args := []string{"-p", "--output-format", "json", "--dangerously-skip-permissions"}
			if model != "" {
				args = append(args, "--model", model)
			}
			return args
		},
		Extractor: ExtractJSONEnvelope,
	},
	Codex: {
		Kind:   Codex,
		Binary: "codex",
		BuildArgs: func(model string) []string {
			args := []string{"exec", "--json", "--full-auto", "--skip-git-repo-check"}
			if model != "" {
				args = append(args, "--model", model)
			}
			return args
		},
		Extractor: ExtractStreamedItemCompleted,
	},
	Gemini: {
		Kind:   Gemini,
		Binary: "gemini",
		BuildArgs: func(model string) []string {
			args := []string{"--yolo", "--output-format", "stream-json"}
			if model != "" {
				args = append(args, "--model", model)
			}
			return args
		},
		Extractor: ExtractStreamedAssistantMessage,
	},
}
