package preflight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/rehearsa/internal/runtime"
	"github.com/vitaliisemenov/rehearsa/internal/stack"
)

type fakeHostEnv struct {
	env   map[string]string
	paths map[string]bool
}

func newFakeHostEnv() *fakeHostEnv {
	return &fakeHostEnv{env: make(map[string]string), paths: make(map[string]bool)}
}

func (h *fakeHostEnv) LookupEnv(key string) (string, bool) {
	v, ok := h.env[key]
	return v, ok
}

func (h *fakeHostEnv) PathExists(path string) bool {
	return h.paths[path]
}

func TestBindMountRule_PresentPathAndNamedVolume(t *testing.T) {
	s := stack.New("demo")
	s.Services["db"] = stack.Service{
		Volumes: []string{"/data/db:/var/lib/postgresql/data", "named-volume:/var/lib/data"},
	}
	host := newFakeHostEnv()
	host.paths["/data/db"] = true

	findings := BindMountRule{}.Evaluate(context.Background(), s, host, nil)
	require.Len(t, findings, 1)
	assert.Equal(t, Info, findings[0].Severity)
	assert.Equal(t, 0, findings[0].Penalty)
}

func TestBindMountRule_MissingPath(t *testing.T) {
	s := stack.New("demo")
	s.Services["db"] = stack.Service{Volumes: []string{"/data/db:/var/lib/postgresql/data"}}
	host := newFakeHostEnv()

	findings := BindMountRule{}.Evaluate(context.Background(), s, host, nil)
	require.Len(t, findings, 1)
	assert.Equal(t, Critical, findings[0].Severity)
	assert.Equal(t, 25, findings[0].Penalty)
}

func TestImagePullRule_UnpinnedTag(t *testing.T) {
	s := stack.New("demo")
	s.Services["api"] = stack.Service{Image: "demo/api:latest"}
	rt := runtime.NewFake()

	findings := ImagePullRule{}.Evaluate(context.Background(), s, nil, rt)
	require.Len(t, findings, 1)
	assert.Equal(t, Warning, findings[0].Severity)
	assert.Equal(t, 5, findings[0].Penalty)
}

func TestImagePullRule_PullFailure(t *testing.T) {
	s := stack.New("demo")
	s.Services["api"] = stack.Service{Image: "demo/api:1.0"}
	rt := runtime.NewFake()
	rt.FailImages["demo/api:1.0"] = true

	findings := ImagePullRule{}.Evaluate(context.Background(), s, nil, rt)
	require.Len(t, findings, 1)
	assert.Equal(t, Critical, findings[0].Severity)
	assert.Equal(t, 30, findings[0].Penalty)
}

func TestImagePullRule_PinnedAndSuccessful(t *testing.T) {
	s := stack.New("demo")
	s.Services["api"] = stack.Service{Image: "demo/api:1.0"}
	rt := runtime.NewFake()

	findings := ImagePullRule{}.Evaluate(context.Background(), s, nil, rt)
	assert.Empty(t, findings)
}

func TestEnvVarRule_BareKeyPresentAndExplicitPair(t *testing.T) {
	s := stack.New("demo")
	s.Services["api"] = stack.Service{Env: []string{"API_KEY", "LOG_LEVEL=debug"}}
	host := newFakeHostEnv()
	host.env["API_KEY"] = "secret"

	findings := EnvVarRule{}.Evaluate(context.Background(), s, host, nil)
	require.Len(t, findings, 1)
	assert.Equal(t, Info, findings[0].Severity)
}

func TestEnvVarRule_BareKeyAbsent(t *testing.T) {
	s := stack.New("demo")
	s.Services["api"] = stack.Service{Env: []string{"API_KEY"}}
	host := newFakeHostEnv()

	findings := EnvVarRule{}.Evaluate(context.Background(), s, host, nil)
	require.Len(t, findings, 1)
	assert.Equal(t, Critical, findings[0].Severity)
	assert.Equal(t, 20, findings[0].Penalty)
}

func TestExternalNetworkRule_PresentAndMissing(t *testing.T) {
	s := stack.New("demo")
	s.ExternalNetworks["present-net"] = struct{}{}
	s.ExternalNetworks["missing-net"] = struct{}{}
	rt := runtime.NewFake()
	require.NoError(t, rt.CreateNetwork(context.Background(), "present-net", nil))

	findings := ExternalNetworkRule{}.Evaluate(context.Background(), s, nil, rt)
	require.Len(t, findings, 2)

	var sawMissing bool
	for _, f := range findings {
		if f.Severity == Critical {
			sawMissing = true
			assert.Equal(t, 25, f.Penalty)
		}
	}
	assert.True(t, sawMissing)
}

func TestExternalNetworkRule_NilRuntimeSkips(t *testing.T) {
	s := stack.New("demo")
	s.ExternalNetworks["missing-net"] = struct{}{}

	findings := ExternalNetworkRule{}.Evaluate(context.Background(), s, nil, nil)
	assert.Empty(t, findings)
}

func TestAnalyze_SaturatingScore(t *testing.T) {
	s := stack.New("demo")
	s.Services["api"] = stack.Service{
		Image: "demo/api:latest",
		Env:   []string{"MISSING_A", "MISSING_B"},
	}
	host := newFakeHostEnv()
	rt := runtime.NewFake()

	_, readiness := Analyze(context.Background(), s, host, rt, []Rule{ImagePullRule{}, EnvVarRule{}})
	// 100 - 5 (unpinned) - 20 - 20 (two missing env vars) = 55
	assert.Equal(t, 55, readiness)
}

func TestAnalyze_ScoreNeverNegative(t *testing.T) {
	s := stack.New("demo")
	s.Services["a"] = stack.Service{Volumes: []string{"/missing-1:/x"}}
	s.Services["b"] = stack.Service{Volumes: []string{"/missing-2:/x"}}
	s.Services["c"] = stack.Service{Volumes: []string{"/missing-3:/x"}}
	s.Services["d"] = stack.Service{Volumes: []string{"/missing-4:/x"}}
	s.Services["e"] = stack.Service{Volumes: []string{"/missing-5:/x"}}
	host := newFakeHostEnv()

	_, readiness := Analyze(context.Background(), s, host, nil, []Rule{BindMountRule{}})
	assert.Equal(t, 0, readiness)
}

func TestDefaultRules_FixedOrder(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, 4)
	assert.Equal(t, "bind_mount", rules[0].Name())
	assert.Equal(t, "image_pull", rules[1].Name())
	assert.Equal(t, "env_var", rules[2].Name())
	assert.Equal(t, "external_network", rules[3].Name())
}
