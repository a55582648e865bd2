// Package runtime defines the container runtime contract the rehearsal
// executor drives: create/start/inspect/logs/remove container,
// create/list/remove network, pull/inspect image. It provides two
// implementations: a Docker adapter (Docker) for production use, and an
// in-memory Fake for unit tests that must not require a live daemon.
package runtime

import "context"

// Status is the lifecycle state of a container as reported by inspect.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusDead    Status = "dead"
)

// Health is the healthcheck status as reported by inspect.
type Health string

const (
	HealthNone      Health = ""
	HealthStarting  Health = "starting"
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// ContainerState is the subset of container inspect output the wait-and-
// score loop needs.
type ContainerState struct {
	Status Status
	Health Health
}

// HealthCheckSpec is a healthcheck block translated to nanosecond
// durations, ready for the runtime's native config.
type HealthCheckSpec struct {
	Test     []string
	Interval int64 // nanoseconds
	Timeout  int64 // nanoseconds
	Retries  int
}

// ContainerSpec describes a container to create, attached to a single
// rehearsal-scoped network.
type ContainerSpec struct {
	Name         string
	Image        string
	Env          []string
	Command      []string
	Entrypoint   []string
	Labels       map[string]string
	NetworkName  string
	NetworkAlias string
	HealthCheck  *HealthCheckSpec
}

// Named is a container or network name together with the labels it was
// created with, enough for a caller to recover which stack/run it belongs
// to without a separate inspect call.
type Named struct {
	Name   string
	Labels map[string]string
}

// Runtime is the container-orchestration contract consumed (not defined)
// by the rehearsal executor.
type Runtime interface {
	CreateNetwork(ctx context.Context, name string, labels map[string]string) error
	RemoveNetwork(ctx context.Context, name string) error
	NetworkExists(ctx context.Context, name string) (bool, error)

	PullImage(ctx context.Context, image string) error
	ImageExistsLocally(ctx context.Context, image string) (bool, error)

	CreateContainer(ctx context.Context, spec ContainerSpec) error
	StartContainer(ctx context.Context, name string) error
	InspectContainer(ctx context.Context, name string) (ContainerState, error)
	ContainerLogs(ctx context.Context, name string, tailLines int) (string, error)
	RemoveContainer(ctx context.Context, name string) error

	// ListContainersByPrefix lists containers whose name begins with
	// prefix, with labels, used by the cleanup sweep to recover which
	// stack an orphan belonged to.
	ListContainersByPrefix(ctx context.Context, prefix string) ([]Named, error)
	// ListNetworksByPrefix mirrors ListContainersByPrefix for networks.
	ListNetworksByPrefix(ctx context.Context, prefix string) ([]Named, error)
}
