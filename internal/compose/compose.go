// Package compose adapts a Docker-Compose-shaped YAML file into the
// stack.Stack model. It covers the fields the rest of the engine consumes
// and does not attempt to replicate Compose's full schema.
package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vitaliisemenov/rehearsa/internal/stack"
)

type fileHealthCheck struct {
	Test     yaml.Node `yaml:"test"`
	Interval string    `yaml:"interval"`
	Timeout  string    `yaml:"timeout"`
	Retries  uint64    `yaml:"retries"`
}

type fileService struct {
	Image       string            `yaml:"image"`
	Environment yaml.Node         `yaml:"environment"`
	Volumes     []string          `yaml:"volumes"`
	DependsOn   yaml.Node         `yaml:"depends_on"`
	Command     yaml.Node         `yaml:"command"`
	Entrypoint  yaml.Node         `yaml:"entrypoint"`
	HealthCheck *fileHealthCheck  `yaml:"healthcheck"`
	Ports       []string          `yaml:"ports"`
	Labels      map[string]string `yaml:"labels"`
}

type fileNetwork struct {
	External bool `yaml:"external"`
}

type file struct {
	Services map[string]fileService `yaml:"services"`
	Networks map[string]fileNetwork `yaml:"networks"`
}

// Load parses the composition file at path and returns the stack it
// describes, named after the file's stem.
func Load(path string) (*stack.Stack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read composition file %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse composition file %s: %w", path, err)
	}

	name := stemOf(path)
	s := stack.New(name)

	for svcName, fs := range f.Services {
		svc := stack.Service{
			Image:      fs.Image,
			Volumes:    fs.Volumes,
			Ports:      fs.Ports,
			Labels:     fs.Labels,
			Command:    stringList(fs.Command),
			Entrypoint: stringList(fs.Entrypoint),
			DependsOn:  stringList(fs.DependsOn),
			Env:        stringList(fs.Environment),
		}
		if fs.HealthCheck != nil {
			svc.HealthCheck = &stack.HealthCheck{
				Test:     stringList(fs.HealthCheck.Test),
				Interval: fs.HealthCheck.Interval,
				Timeout:  fs.HealthCheck.Timeout,
				Retries:  fs.HealthCheck.Retries,
			}
		}
		s.Services[svcName] = svc
	}

	for netName, fn := range f.Networks {
		if fn.External {
			s.ExternalNetworks[netName] = struct{}{}
		}
	}

	return s, nil
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// stringList normalizes a YAML node that may be either a sequence
// ("- A\n- B") or a map ("A: B") into Compose's flattened "KEY=value"
// string-list form, or a bare sequence of strings for command/entrypoint.
func stringList(n yaml.Node) []string {
	switch n.Kind {
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			out = append(out, item.Value)
		}
		return out
	case yaml.MappingNode:
		out := make([]string, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			val := n.Content[i+1].Value
			out = append(out, key+"="+val)
		}
		return out
	case yaml.ScalarNode:
		if n.Value == "" {
			return nil
		}
		return []string{n.Value}
	default:
		return nil
	}
}
