package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/rehearsa/internal/baseline"
	"github.com/vitaliisemenov/rehearsa/internal/history"
	"github.com/vitaliisemenov/rehearsa/internal/lock"
	"github.com/vitaliisemenov/rehearsa/internal/policy"
	"github.com/vitaliisemenov/rehearsa/internal/risk"
	"github.com/vitaliisemenov/rehearsa/internal/runtime"
	"github.com/vitaliisemenov/rehearsa/internal/stack"
)

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(context.Context, *stack.Stack) error {
	return f.err
}

func writeCompose(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestExecutorAt(root string, rt runtime.Runtime) *Executor {
	return &Executor{
		History:      history.NewStore(filepath.Join(root, "history")),
		Baseline:     baseline.NewStore(filepath.Join(root, "baselines"), filepath.Join(root, "baseline-history")),
		Policy:       policy.NewStore(filepath.Join(root, "policies")),
		Runtime:      rt,
		LockDir:      filepath.Join(root, "lock"),
		PollInterval: time.Millisecond,
		Sleep:        func(time.Duration) {},
	}
}

func newTestExecutor(t *testing.T, rt runtime.Runtime) *Executor {
	t.Helper()
	return newTestExecutorAt(t.TempDir(), rt)
}

func TestRun_TwoServiceStack_AllHealthy(t *testing.T) {
	path := writeCompose(t, `
services:
  db:
    image: demo/db:1.0
    healthcheck:
      test: ["CMD", "pg_isready"]
      interval: 5s
  api:
    image: demo/api:1.0
    depends_on:
      - db
    healthcheck:
      test: ["CMD", "curl", "-f", "http://localhost/health"]
      interval: 5s
`)

	e := newTestExecutor(t, runtime.NewFake())
	summary, err := e.Run(context.Background(), Options{
		ComposePath: path,
		TimeoutSec:  5,
		PullPolicy:  PullIfMissing,
	})
	require.NoError(t, err)

	assert.Equal(t, "demo", summary.Stack)
	assert.Equal(t, 100, summary.Confidence)
	assert.Equal(t, 100, summary.Readiness)
	assert.Equal(t, risk.Low, summary.Risk)
	assert.Equal(t, map[string]int{"api": 100, "db": 100}, summary.ServiceScores)
	assert.False(t, summary.PolicyViolated)
	assert.Equal(t, 0, summary.ExitCode)
}

func TestRun_FaultInjectionForcesZero(t *testing.T) {
	path := writeCompose(t, `
services:
  api:
    image: demo/api:1.0
`)

	e := newTestExecutor(t, runtime.NewFake())
	summary, err := e.Run(context.Background(), Options{
		ComposePath:   path,
		TimeoutSec:    2,
		PullPolicy:    PullIfMissing,
		InjectFailure: "api",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ServiceScores["api"])
	assert.Equal(t, 0, summary.Confidence)
	assert.Equal(t, risk.Critical, summary.Risk)
	assert.Equal(t, 3, summary.ExitCode)
}

func TestRun_ServiceWithoutHealthCheckScoresEightyFive(t *testing.T) {
	path := writeCompose(t, `
services:
  api:
    image: demo/api:1.0
`)

	e := newTestExecutor(t, runtime.NewFake())
	summary, err := e.Run(context.Background(), Options{
		ComposePath: path,
		TimeoutSec:  1,
		PullPolicy:  PullIfMissing,
	})
	require.NoError(t, err)
	assert.Equal(t, 85, summary.ServiceScores["api"])
}

func TestRun_PullNeverFailsWhenImageAbsent(t *testing.T) {
	path := writeCompose(t, `
services:
  api:
    image: demo/api:1.0
`)

	e := newTestExecutor(t, runtime.NewFake())
	_, err := e.Run(context.Background(), Options{
		ComposePath: path,
		TimeoutSec:  1,
		PullPolicy:  PullNever,
	})
	assert.ErrorIs(t, err, ErrRuntime)
}

func TestRun_CycleDetected(t *testing.T) {
	path := writeCompose(t, `
services:
  a:
    image: demo/a:1.0
    depends_on: [b]
  b:
    image: demo/b:1.0
    depends_on: [a]
`)

	e := newTestExecutor(t, runtime.NewFake())
	_, err := e.Run(context.Background(), Options{
		ComposePath: path,
		TimeoutSec:  1,
		PullPolicy:  PullIfMissing,
	})
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestRun_LockContentionReportsHeld(t *testing.T) {
	path := writeCompose(t, `
services:
  api:
    image: demo/api:1.0
`)

	e := newTestExecutor(t, runtime.NewFake())
	held, err := lock.Acquire(e.LockDir, "demo")
	require.NoError(t, err)
	defer held.Release()

	_, err = e.Run(context.Background(), Options{
		ComposePath: path,
		TimeoutSec:  1,
		PullPolicy:  PullIfMissing,
	})
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestRun_PolicyViolationExitCode(t *testing.T) {
	path := writeCompose(t, `
services:
  api:
    image: demo/api:1.0
`)

	e := newTestExecutor(t, runtime.NewFake())
	minConfidence := 100
	require.NoError(t, e.Policy.Save("demo", &policy.StackPolicy{MinConfidence: &minConfidence}))

	summary, err := e.Run(context.Background(), Options{
		ComposePath: path,
		TimeoutSec:  1,
		PullPolicy:  PullIfMissing,
	})
	require.NoError(t, err)
	assert.True(t, summary.PolicyViolated)
	assert.Equal(t, 4, summary.ExitCode)
}

func TestRun_ProviderVerificationFailureOverridesExitCode(t *testing.T) {
	path := writeCompose(t, `
services:
  api:
    image: demo/api:1.0
`)

	e := newTestExecutor(t, runtime.NewFake())
	e.Provider = &fakeVerifier{err: assert.AnError}

	summary, err := e.Run(context.Background(), Options{
		ComposePath: path,
		TimeoutSec:  1,
		PullPolicy:  PullIfMissing,
	})
	require.NoError(t, err)
	assert.True(t, summary.ProviderVerificationFailed)
	assert.Equal(t, assert.AnError.Error(), summary.ProviderError)
	assert.Equal(t, 6, summary.ExitCode)
}

func TestRun_ProviderVerificationSuccessLeavesExitCodeAlone(t *testing.T) {
	path := writeCompose(t, `
services:
  api:
    image: demo/api:1.0
    healthcheck:
      test: ["CMD", "curl", "-f", "http://localhost/health"]
      interval: 5s
`)

	e := newTestExecutor(t, runtime.NewFake())
	e.Provider = &fakeVerifier{}

	summary, err := e.Run(context.Background(), Options{
		ComposePath: path,
		TimeoutSec:  1,
		PullPolicy:  PullIfMissing,
	})
	require.NoError(t, err)
	assert.False(t, summary.ProviderVerificationFailed)
	assert.Equal(t, 0, summary.ExitCode)
}

func TestRun_StrictIntegrityCatchesTamperedHistory(t *testing.T) {
	path := writeCompose(t, `
services:
  api:
    image: demo/api:1.0
`)

	root := t.TempDir()
	e := newTestExecutorAt(root, runtime.NewFake())
	require.NoError(t, e.History.Persist(&history.RunRecord{
		Stack:      "demo",
		Timestamp:  "2026-01-01T00-00-00Z",
		Confidence: 100,
		Services:   map[string]int{"api": 100},
	}))

	// Corrupt the persisted record in place.
	historyDir := filepath.Join(root, "history", "demo")
	entries, err := os.ReadDir(historyDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	recordPath := filepath.Join(historyDir, entries[0].Name())
	b, err := os.ReadFile(recordPath)
	require.NoError(t, err)
	tampered := append([]byte{}, b...)
	tampered = append(tampered, []byte(`// tampered`)...)
	require.NoError(t, os.WriteFile(recordPath, tampered, 0o644))

	_, err = e.Run(context.Background(), Options{
		ComposePath:     path,
		TimeoutSec:      1,
		PullPolicy:      PullIfMissing,
		StrictIntegrity: true,
	})
	assert.ErrorIs(t, err, ErrIntegrityViolation)
}
