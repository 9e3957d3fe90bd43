// Package agentexec runs one agent kind against one prompt: it spawns the
// kind's CLI as a subprocess, delivers the prompt over stdin, collects
// output, and extracts the agent's actual message text from whatever wire
// shape that kind uses. It never writes the prompt to a temp file and
// never shells out through an interpreter — the subprocess always receives
// argv and stdin directly.
package agentexec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout is used for ordinary worker task execution.
const DefaultTimeout = 300 * time.Second

// CycleTimeout is used for Planner and Judge raw execution, which tends to
// involve larger context and longer responses.
const CycleTimeout = 600 * time.Second

// KindSpec describes how to invoke one agent kind's CLI.
type KindSpec struct {
	Kind      string
	Binary    string
	BuildArgs func(model string) []string
	Extractor Extractor
}

// Result is the structured outcome of one subprocess execution.
type Result struct {
	Success  bool
	Output   string
	Raw      string
	ErrText  string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Executor runs one KindSpec's CLI against prompts in a fixed working
// directory, optionally capturing prompt/response pairs for debugging.
type Executor struct {
	Spec     KindSpec
	Workdir  string
	Model    string
	DebugDir string // empty disables debug capture
	Logger   *slog.Logger
}

// New creates an Executor for spec, rooted at workdir.
func New(spec KindSpec, workdir string) *Executor {
	return &Executor{Spec: spec, Workdir: workdir, Logger: slog.Default()}
}

// Run spawns the subprocess, writes prompt to stdin, and waits up to
// timeout. A non-positive timeout uses DefaultTimeout.
func (e *Executor) Run(ctx context.Context, prompt string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := e.Spec.BuildArgs(e.Model)
	cmd := exec.CommandContext(ctx, e.Spec.Binary, args...)
	cmd.Dir = e.Workdir
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcAttr(cmd)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			_ = killProcessGroup(cmd.Process.Pid)
		}
		res := &Result{
			Success:  false,
			Raw:      stdout.String(),
			ErrText:  "execution timed out",
			ExitCode: 124,
			Duration: duration,
			TimedOut: true,
		}
		e.captureDebug(prompt, res)
		return res, nil
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("agentexec: spawn %s: %w", e.Spec.Binary, runErr)
		}
	}

	raw := stdout.Bytes()
	text, ok := e.Spec.Extractor(raw)
	if !ok {
		e.Logger.Warn("agentexec: extractor found no structured output, falling back to raw", "kind", e.Spec.Kind)
		text, _ = ExtractRaw(raw)
	}

	res := &Result{
		Success:  exitCode == 0,
		Output:   text,
		Raw:      string(raw),
		ErrText:  stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
	}
	e.captureDebug(prompt, res)
	return res, nil
}

// captureDebug persists the prompt and the response under DebugDir with
// timestamped filenames. Prompt reproducibility is part of the operator
// contract, so this is a required side effect, not a diagnostic nicety.
func (e *Executor) captureDebug(prompt string, res *Result) {
	if e.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(e.DebugDir, 0o755); err != nil {
		e.Logger.Warn("agentexec: debug capture mkdir failed", "error", err)
		return
	}
	ts := time.Now().UTC().Format("20060102T150405.000000000Z")
	base := filepath.Join(e.DebugDir, fmt.Sprintf("%s-%s", e.Spec.Kind, ts))

	writes := map[string]string{
		base + "-prompt.txt":   prompt,
		base + "-raw.txt":      res.Raw,
		base + "-response.txt": res.Output,
	}
	for path, content := range writes {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			e.Logger.Warn("agentexec: debug capture write failed", "path", path, "error", err)
		}
	}
}
