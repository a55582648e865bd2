// Package preflight implements the rule engine (C6) that predicts
// fresh-host restorability for a parsed stack: an ordered set of rules
// evaluated over the stack, the host environment, and the container
// runtime, each contributing findings that saturating-subtract from a
// starting readiness score of 100.
package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vitaliisemenov/rehearsa/internal/runtime"
	"github.com/vitaliisemenov/rehearsa/internal/stack"
)

// Severity classifies a Finding.
type Severity string

const (
	Info     Severity = "Info"
	Warning  Severity = "Warning"
	Critical Severity = "Critical"
)

// Finding is one rule's observation about a single service or the stack
// as a whole.
type Finding struct {
	Rule    string
	Service string
	Severity Severity
	Message string
	Penalty int
}

// HostEnv abstracts host-level lookups so rules are testable without
// touching the real process environment or filesystem.
type HostEnv interface {
	LookupEnv(key string) (string, bool)
	PathExists(path string) bool
}

// OSHostEnv is the production HostEnv backed by the real OS.
type OSHostEnv struct{}

func (OSHostEnv) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (OSHostEnv) PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Rule evaluates one aspect of a stack and returns zero or more findings.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, s *stack.Stack, host HostEnv, rt runtime.Runtime) []Finding
}

// DefaultRules returns the fixed-order rule set: bind mounts, image pull
// policy, bare environment variables, then external networks. New rules
// append to the end; existing severities and penalties are part of the
// public contract and must not change.
func DefaultRules() []Rule {
	return []Rule{
		BindMountRule{},
		ImagePullRule{},
		EnvVarRule{},
		ExternalNetworkRule{},
	}
}

// Analyze runs every rule in order over s and returns the combined
// findings plus the resulting readiness score.
func Analyze(ctx context.Context, s *stack.Stack, host HostEnv, rt runtime.Runtime, rules []Rule) (findings []Finding, readiness int) {
	for _, r := range rules {
		findings = append(findings, r.Evaluate(ctx, s, host, rt)...)
	}
	return findings, scoreOf(findings)
}

func scoreOf(findings []Finding) int {
	score := 100
	for _, f := range findings {
		score -= f.Penalty
		if score < 0 {
			score = 0
		}
	}
	return score
}

// BindMountRule flags absolute-path host bind mounts whose source does not
// exist on the host. Named volumes (no leading "/") are skipped.
type BindMountRule struct{}

func (BindMountRule) Name() string { return "bind_mount" }

func (r BindMountRule) Evaluate(_ context.Context, s *stack.Stack, host HostEnv, _ runtime.Runtime) []Finding {
	var findings []Finding
	for _, name := range s.ServiceNames() {
		svc := s.Services[name]
		for _, vol := range svc.Volumes {
			hostPath, ok := bindMountSource(vol)
			if !ok {
				continue
			}
			if host.PathExists(hostPath) {
				findings = append(findings, Finding{
					Rule: r.Name(), Service: name, Severity: Info,
					Message: fmt.Sprintf("bind mount source %q exists", hostPath),
				})
				continue
			}
			findings = append(findings, Finding{
				Rule: r.Name(), Service: name, Severity: Critical,
				Message: fmt.Sprintf("bind mount source %q does not exist", hostPath),
				Penalty: 25,
			})
		}
	}
	return findings
}

func bindMountSource(spec string) (path string, isBindMount bool) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return "", false
	}
	if !strings.HasPrefix(parts[0], "/") {
		return "", false
	}
	return parts[0], true
}

// ImagePullRule flags unpinned image tags and images that fail to pull.
type ImagePullRule struct{}

func (ImagePullRule) Name() string { return "image_pull" }

func (r ImagePullRule) Evaluate(ctx context.Context, s *stack.Stack, _ HostEnv, rt runtime.Runtime) []Finding {
	var findings []Finding
	for _, name := range s.ServiceNames() {
		svc := s.Services[name]
		if svc.Image == "" {
			continue
		}
		if !isPinnedTag(svc.Image) {
			findings = append(findings, Finding{
				Rule: r.Name(), Service: name, Severity: Warning,
				Message: fmt.Sprintf("image %q is not pinned to an immutable tag", svc.Image),
				Penalty: 5,
			})
		}
		if rt == nil {
			continue
		}
		if err := rt.PullImage(ctx, svc.Image); err != nil {
			findings = append(findings, Finding{
				Rule: r.Name(), Service: name, Severity: Critical,
				Message: fmt.Sprintf("failed to pull image %q: %v", svc.Image, err),
				Penalty: 30,
			})
		}
	}
	return findings
}

func isPinnedTag(image string) bool {
	ref := image
	if idx := strings.LastIndex(image, "/"); idx >= 0 {
		ref = image[idx+1:]
	}
	colon := strings.LastIndex(ref, ":")
	if colon < 0 {
		return false
	}
	return ref[colon+1:] != "latest"
}

// EnvVarRule flags bare-key environment entries (host-inherited, not
// assigned a literal value in the compose file) absent from the host.
type EnvVarRule struct{}

func (EnvVarRule) Name() string { return "env_var" }

func (r EnvVarRule) Evaluate(_ context.Context, s *stack.Stack, host HostEnv, _ runtime.Runtime) []Finding {
	var findings []Finding
	for _, name := range s.ServiceNames() {
		svc := s.Services[name]
		_, bareKeys := svc.ExplicitEnv()
		for _, key := range bareKeys {
			if _, ok := host.LookupEnv(key); ok {
				findings = append(findings, Finding{
					Rule: r.Name(), Service: name, Severity: Info,
					Message: fmt.Sprintf("environment variable %q is present on the host", key),
				})
				continue
			}
			findings = append(findings, Finding{
				Rule: r.Name(), Service: name, Severity: Critical,
				Message: fmt.Sprintf("environment variable %q is not set on the host", key),
				Penalty: 20,
			})
		}
	}
	return findings
}

// ExternalNetworkRule flags external networks the stack references that
// are absent on the host. If the runtime cannot be queried the rule is
// skipped entirely, to avoid a false positive from a transient runtime
// error rather than a genuinely missing network.
type ExternalNetworkRule struct{}

func (ExternalNetworkRule) Name() string { return "external_network" }

func (r ExternalNetworkRule) Evaluate(ctx context.Context, s *stack.Stack, _ HostEnv, rt runtime.Runtime) []Finding {
	if rt == nil {
		return nil
	}
	var findings []Finding
	for _, name := range s.ExternalNetworkNames() {
		exists, err := rt.NetworkExists(ctx, name)
		if err != nil {
			continue
		}
		if exists {
			findings = append(findings, Finding{
				Rule: r.Name(), Severity: Info,
				Message: fmt.Sprintf("external network %q is present", name),
			})
			continue
		}
		findings = append(findings, Finding{
			Rule: r.Name(), Severity: Critical,
			Message: fmt.Sprintf("external network %q is missing", name),
			Penalty: 25,
		})
	}
	return findings
}
