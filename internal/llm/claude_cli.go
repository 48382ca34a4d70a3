package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ClaudeCLI calls the Claude CLI (`claude -p`) as a subprocess.
type ClaudeCLI struct {
	bin   string
	model string
	opts  Options
}

// NewClaudeCLI creates a new Claude CLI client.
func NewClaudeCLI(model string, opts Options) *ClaudeCLI {
	return &ClaudeCLI{bin: "claude", model: model, opts: opts}
}

// args builds the command line for one non-interactive completion.
func (c *ClaudeCLI) args() []string {
	return []string{"-p", "--model", c.model, "--max-turns", "1", "--output-format", "text"}
}

// Complete pipes the prompt to the CLI and returns its stdout.
func (c *ClaudeCLI) Complete(ctx context.Context, prompt string) (*Response, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.bin, c.args()...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("claude cli: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	return &Response{
		Content:  strings.TrimSpace(stdout.String()),
		Provider: "claude-cli",
	}, nil
}
