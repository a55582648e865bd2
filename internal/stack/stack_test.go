package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ExplicitEnv_SplitsBareAndExplicit(t *testing.T) {
	svc := Service{Env: []string{"FOO=bar", "BAKED_IN", "BAZ=qux=extra"}}

	pairs, bare := svc.ExplicitEnv()

	assert.Equal(t, "bar", pairs["FOO"])
	assert.Equal(t, "qux=extra", pairs["BAZ"])
	assert.Equal(t, []string{"BAKED_IN"}, bare)
}

func TestStack_DependencyMap_RejectsUndefinedReference(t *testing.T) {
	s := New("myapp")
	s.Services["api"] = Service{DependsOn: []string{"missing"}}

	_, err := s.DependencyMap()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestStack_DependencyMap_ResolvesKnownServices(t *testing.T) {
	s := New("myapp")
	s.Services["api"] = Service{DependsOn: []string{"db"}}
	s.Services["db"] = Service{}

	deps, err := s.DependencyMap()
	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, deps["api"])
	assert.Empty(t, deps["db"])
}

func TestHealthCheck_IntervalDuration(t *testing.T) {
	hc := HealthCheck{Interval: "10s"}
	d, ok := hc.IntervalDuration()
	require.True(t, ok)
	assert.Equal(t, 10.0, d.Seconds())
}

func TestHealthCheck_IntervalDuration_Unparseable(t *testing.T) {
	hc := HealthCheck{Interval: "soon"}
	_, ok := hc.IntervalDuration()
	assert.False(t, ok)
}
