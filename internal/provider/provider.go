// Package provider implements the backup-provider verification boundary
// (§4.11): a Verifier interface exercised by the executor and a subprocess
// adapter wrapping an externally configured verification command. It does
// no restic/borg-specific parsing; that stays out of scope.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/vitaliisemenov/rehearsa/internal/stack"
)

// Verifier confirms that a stack's backing backup provider (restic, borg,
// or similar) considers the stack's data restorable.
type Verifier interface {
	Verify(ctx context.Context, s *stack.Stack) error
}

// CommandConfig configures one shell-out verification command.
type CommandConfig struct {
	Command []string
	Timeout time.Duration // defaults to 2 minutes
}

// SubprocessVerifier runs a configured external command per stack and
// treats a non-zero exit as verification failure. The stack name is
// appended as the command's final argument.
type SubprocessVerifier struct {
	cfg    CommandConfig
	logger *slog.Logger
	run    func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewSubprocessVerifier returns a SubprocessVerifier for cfg.
func NewSubprocessVerifier(cfg CommandConfig, logger *slog.Logger) *SubprocessVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubprocessVerifier{cfg: cfg, logger: logger, run: exec.CommandContext}
}

func (v *SubprocessVerifier) timeout() time.Duration {
	if v.cfg.Timeout > 0 {
		return v.cfg.Timeout
	}
	return 2 * time.Minute
}

// Verify shells out to the configured command with s.Name appended as the
// last argument and fails if it exits non-zero or times out.
func (v *SubprocessVerifier) Verify(ctx context.Context, s *stack.Stack) error {
	if len(v.cfg.Command) == 0 {
		return fmt.Errorf("provider: no verification command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout())
	defer cancel()

	args := append(append([]string{}, v.cfg.Command[1:]...), s.Name)
	cmd := v.run(ctx, v.cfg.Command[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	v.logger.Info("provider: running verification command", "stack", s.Name, "command", v.cfg.Command[0])

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("provider: verification command failed for stack %q: %w (stderr: %s)", s.Name, err, stderr.String())
	}
	return nil
}

var _ Verifier = (*SubprocessVerifier)(nil)
