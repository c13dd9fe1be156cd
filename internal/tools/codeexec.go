package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// codeExecutorTool runs short Python snippets in a subprocess with a hard
// wall-clock limit. Snippets touching files, processes, the network, or
// serialization modules are rejected before execution.
type codeExecutorTool struct {
	pythonBin string
	timeout   time.Duration
}

func newCodeExecutorTool(pythonBin string, timeout time.Duration) *codeExecutorTool {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &codeExecutorTool{pythonBin: pythonBin, timeout: timeout}
}

func (t *codeExecutorTool) ID() string { return ToolCodeExecutor }

var bannedPatterns = []string{
	"open(", "file(", "exec(", "eval(", "compile(", "__import__",
	"subprocess", "os.system", "os.popen", "shutil", "pathlib",
	"socket", "urllib", "requests", "pickle", "shelve", "marshal",
}

func checkCode(code string) error {
	lowered := strings.ToLower(code)
	for _, p := range bannedPatterns {
		if strings.Contains(lowered, p) {
			return fmt.Errorf("forbidden pattern %q in code", p)
		}
	}
	return nil
}

func (t *codeExecutorTool) Search(ctx context.Context, code string) ([]research.Source, error) {
	if err := checkCode(code); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.pythonBin, "-c", code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("execution exceeded %s limit", t.timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		msg = research.TruncateText(msg, 500)
		return nil, fmt.Errorf("execution failed: %s", msg)
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = "(no output)"
	}
	output = research.TruncateText(output, 2000)
	return []research.Source{{
		Title:   "Code execution",
		Snippet: output,
	}}, nil
}
