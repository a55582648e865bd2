// Package stack holds the parsed composition model and its dependency graph.
package stack

import (
	"fmt"
	"sort"
	"time"
)

// HealthCheck describes a service's container healthcheck block.
type HealthCheck struct {
	Test     []string `json:"test,omitempty" yaml:"test,omitempty"`
	Interval string   `json:"interval,omitempty" yaml:"interval,omitempty"`
	Timeout  string   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries  uint64   `json:"retries,omitempty" yaml:"retries,omitempty"`
}

// IntervalDuration parses the "Ns" interval string, omitting on failure.
func (h *HealthCheck) IntervalDuration() (time.Duration, bool) {
	return parseSeconds(h.Interval)
}

// TimeoutDuration parses the "Ns" timeout string, omitting on failure.
func (h *HealthCheck) TimeoutDuration() (time.Duration, bool) {
	return parseSeconds(h.Timeout)
}

func parseSeconds(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%ds", &n); err != nil {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// Service is one entry in the composition file.
type Service struct {
	Image       string            `json:"image,omitempty" yaml:"image,omitempty"`
	Env         []string          `json:"env,omitempty" yaml:"environment,omitempty"`
	Volumes     []string          `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Command     []string          `json:"command,omitempty" yaml:"command,omitempty"`
	Entrypoint  []string          `json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`
	HealthCheck *HealthCheck      `json:"healthcheck,omitempty" yaml:"healthcheck,omitempty"`
	Ports       []string          `json:"ports,omitempty" yaml:"ports,omitempty"`
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// ExplicitEnv splits Env into "KEY=value" pairs and bare "KEY" host-inherited names.
func (s *Service) ExplicitEnv() (pairs map[string]string, bareKeys []string) {
	pairs = make(map[string]string)
	for _, entry := range s.Env {
		if idx := indexByte(entry, '='); idx >= 0 {
			pairs[entry[:idx]] = entry[idx+1:]
		} else {
			bareKeys = append(bareKeys, entry)
		}
	}
	return pairs, bareKeys
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Stack is the fully parsed composition model for one named application stack.
type Stack struct {
	Name              string
	Services          map[string]Service
	ExternalNetworks  map[string]struct{}
}

// New creates an empty Stack with the given name.
func New(name string) *Stack {
	return &Stack{
		Name:             name,
		Services:         make(map[string]Service),
		ExternalNetworks: make(map[string]struct{}),
	}
}

// ServiceNames returns all service names, sorted for deterministic iteration
// in callers that need it (the dependency graph itself makes no such promise).
func (s *Stack) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for n := range s.Services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ExternalNetworkNames returns the set of external network names referenced
// by this stack.
func (s *Stack) ExternalNetworkNames() []string {
	names := make([]string, 0, len(s.ExternalNetworks))
	for n := range s.ExternalNetworks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DependencyMap extracts the name -> depends_on adjacency used by the
// topological sort, validating that every reference resolves within the
// stack.
func (s *Stack) DependencyMap() (map[string][]string, error) {
	deps := make(map[string][]string, len(s.Services))
	for name, svc := range s.Services {
		for _, dep := range svc.DependsOn {
			if _, ok := s.Services[dep]; !ok {
				return nil, fmt.Errorf("service %q depends on undefined service %q", name, dep)
			}
		}
		deps[name] = svc.DependsOn
	}
	return deps, nil
}
