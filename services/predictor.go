package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ExecPredictor runs the prediction program and returns its trimmed stdout.
type ExecPredictor struct {
	name    string
	args    []string
	timeout time.Duration
}

func NewExecPredictor(command string, timeout time.Duration) (*ExecPredictor, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("predictor command is empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecPredictor{name: fields[0], args: fields[1:], timeout: timeout}, nil
}

func (p *ExecPredictor) PredictLeak(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.name, p.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slog.Error("prediction error", "command", p.name, "stderr", strings.TrimSpace(stderr.String()), "error", err)
		return "", &ExternalError{Dependency: "predictor", Err: fmt.Errorf("run %s: %w", p.name, err)}
	}
	return strings.TrimSpace(stdout.String()), nil
}
