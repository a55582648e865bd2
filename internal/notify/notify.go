// Package notify implements the event taxonomy, channel resolution, and
// webhook/email transports (C9). Delivery failures are logged, never
// raised: a notification must never block or crash a rehearsal.
package notify

import "log/slog"

// Severity classifies a notification Event.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityWarning  Severity = "Warning"
	SeverityRecovery Severity = "Recovery"
)

// EventKind names one of the fixed taxonomy entries.
type EventKind string

const (
	RehearsalFatalError        EventKind = "RehearsalFatalError"
	ProviderVerificationFailed EventKind = "ProviderVerificationFailed"
	PolicyViolation            EventKind = "PolicyViolation"
	BaselineDrift              EventKind = "BaselineDrift"
	RehearsalRecovered         EventKind = "RehearsalRecovered"
)

// severityByKind is the fixed event -> severity taxonomy.
var severityByKind = map[EventKind]Severity{
	RehearsalFatalError:        SeverityCritical,
	ProviderVerificationFailed: SeverityCritical,
	PolicyViolation:            SeverityWarning,
	BaselineDrift:              SeverityWarning,
	RehearsalRecovered:         SeverityRecovery,
}

// SeverityOf returns kind's fixed severity.
func SeverityOf(kind EventKind) Severity {
	return severityByKind[kind]
}

// Event is one notifiable occurrence for a stack.
type Event struct {
	Kind     EventKind
	Stack    string
	Message  string
	Severity Severity
}

// NewEvent builds an Event with its severity filled in from the taxonomy.
func NewEvent(kind EventKind, stack, message string) Event {
	return Event{Kind: kind, Stack: stack, Message: message, Severity: SeverityOf(kind)}
}

// Channel configures zero or more independent delivery transports for one
// resolved recipient.
type Channel struct {
	Webhook *WebhookConfig
	Email   *EmailConfig
}

// Registry resolves a stack name to its notification channel: per-stack
// override, then a global default, then none.
type Registry struct {
	perStack map[string]Channel
	global   *Channel
}

// NewRegistry returns an empty Registry. Use SetStack/SetGlobal to
// populate it, typically from the channel registry JSON file.
func NewRegistry() *Registry {
	return &Registry{perStack: make(map[string]Channel)}
}

// SetStack registers a per-stack channel override.
func (r *Registry) SetStack(stack string, ch Channel) {
	r.perStack[stack] = ch
}

// SetGlobal registers the fallback channel used when no per-stack override
// exists.
func (r *Registry) SetGlobal(ch Channel) {
	r.global = &ch
}

// Resolve returns the channel for stack, or nil if none is configured.
func (r *Registry) Resolve(stack string) *Channel {
	if ch, ok := r.perStack[stack]; ok {
		return &ch
	}
	return r.global
}

// Transport delivers one Event through a single channel kind.
type Transport interface {
	Send(event Event) error
}

// Dispatcher fires every configured transport for a resolved channel
// independently, logging (not propagating) delivery failures.
type Dispatcher struct {
	Registry *Registry
	Logger   *slog.Logger

	webhookTransportFor func(*WebhookConfig) Transport
	emailTransportFor   func(*EmailConfig) Transport
}

// NewDispatcher returns a Dispatcher wired to the production webhook and
// email transports.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		Registry: registry,
		Logger:   logger,
		webhookTransportFor: func(c *WebhookConfig) Transport { return NewWebhookTransport(c, logger) },
		emailTransportFor:   func(c *EmailConfig) Transport { return NewEmailTransport(c) },
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Dispatch resolves event.Stack's channel and fires every configured
// transport. Both webhook and email fire independently; a failure on one
// does not prevent the other.
func (d *Dispatcher) Dispatch(event Event) {
	ch := d.Registry.Resolve(event.Stack)
	if ch == nil {
		return
	}
	if ch.Webhook != nil {
		if err := d.webhookTransportFor(ch.Webhook).Send(event); err != nil {
			d.logger().Warn("notify: webhook delivery failed", "stack", event.Stack, "kind", string(event.Kind), "error", err)
		}
	}
	if ch.Email != nil {
		if err := d.emailTransportFor(ch.Email).Send(event); err != nil {
			d.logger().Warn("notify: email delivery failed", "stack", event.Stack, "kind", string(event.Kind), "error", err)
		}
	}
}
