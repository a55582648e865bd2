package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is an in-memory Runtime used by unit tests that exercise the
// executor without a live Docker daemon.
type Fake struct {
	mu         sync.Mutex
	networks   map[string]map[string]string
	containers map[string]*fakeContainer
	images     map[string]bool

	// FailImages, when set, makes PullImage fail for the named images.
	FailImages map[string]bool
	// Outcomes overrides InspectContainer's reported state per container
	// name, keyed by the service's container name. Without an entry, a
	// started container reports StatusRunning, plus HealthHealthy when its
	// spec has a healthcheck; a container not yet started reports
	// StatusCreated.
	Outcomes map[string]ContainerState
}

type fakeContainer struct {
	spec    ContainerSpec
	started bool
}

// NewFake returns an empty Fake runtime.
func NewFake() *Fake {
	return &Fake{
		networks:   make(map[string]map[string]string),
		containers: make(map[string]*fakeContainer),
		images:     make(map[string]bool),
		FailImages: make(map[string]bool),
		Outcomes:   make(map[string]ContainerState),
	}
}

func (f *Fake) CreateNetwork(_ context.Context, name string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks[name] = labels
	return nil
}

func (f *Fake) RemoveNetwork(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.networks, name)
	return nil
}

func (f *Fake) NetworkExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.networks[name]
	return ok, nil
}

func (f *Fake) ListNetworksByPrefix(_ context.Context, prefix string) ([]Named, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Named
	for n, labels := range f.networks {
		if strings.HasPrefix(n, prefix) {
			out = append(out, Named{Name: n, Labels: labels})
		}
	}
	return out, nil
}

func (f *Fake) PullImage(_ context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailImages[image] {
		return fmt.Errorf("fake: pull of %s failed", image)
	}
	f.images[image] = true
	return nil
}

func (f *Fake) ImageExistsLocally(_ context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image], nil
}

func (f *Fake) CreateContainer(_ context.Context, spec ContainerSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[spec.Name] = &fakeContainer{spec: spec}
	return nil
}

func (f *Fake) StartContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return fmt.Errorf("fake: no such container %s", name)
	}
	c.started = true
	return nil
}

func (f *Fake) InspectContainer(_ context.Context, name string) (ContainerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if state, ok := f.Outcomes[name]; ok {
		return state, nil
	}
	c, ok := f.containers[name]
	if !ok {
		return ContainerState{}, fmt.Errorf("fake: no such container %s", name)
	}
	if !c.started {
		return ContainerState{Status: StatusCreated}, nil
	}
	if c.spec.HealthCheck != nil {
		return ContainerState{Status: StatusRunning, Health: HealthHealthy}, nil
	}
	return ContainerState{Status: StatusRunning}, nil
}

func (f *Fake) ContainerLogs(_ context.Context, name string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return "", fmt.Errorf("fake: no such container %s", name)
	}
	return "", nil
}

func (f *Fake) RemoveContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	return nil
}

func (f *Fake) ListContainersByPrefix(_ context.Context, prefix string) ([]Named, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Named
	for n, c := range f.containers {
		if strings.HasPrefix(n, prefix) {
			out = append(out, Named{Name: n, Labels: c.spec.Labels})
		}
	}
	return out, nil
}

var _ Runtime = (*Fake)(nil)
