package notify

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOf_FixedTaxonomy(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityOf(RehearsalFatalError))
	assert.Equal(t, SeverityCritical, SeverityOf(ProviderVerificationFailed))
	assert.Equal(t, SeverityWarning, SeverityOf(PolicyViolation))
	assert.Equal(t, SeverityWarning, SeverityOf(BaselineDrift))
	assert.Equal(t, SeverityRecovery, SeverityOf(RehearsalRecovered))
}

func TestRegistry_Resolve_PerStackOverridesGlobal(t *testing.T) {
	r := NewRegistry()
	r.SetGlobal(Channel{Webhook: &WebhookConfig{URL: "http://global"}})
	r.SetStack("demo", Channel{Webhook: &WebhookConfig{URL: "http://demo"}})

	ch := r.Resolve("demo")
	require.NotNil(t, ch)
	assert.Equal(t, "http://demo", ch.Webhook.URL)

	other := r.Resolve("other")
	require.NotNil(t, other)
	assert.Equal(t, "http://global", other.Webhook.URL)
}

func TestRegistry_Resolve_NoneConfigured(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Resolve("demo"))
}

func TestWebhookTransport_SuccessfulDelivery(t *testing.T) {
	var receivedSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSecret = r.Header.Get("X-Rehearsa-Secret")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &WebhookConfig{URL: server.URL, SecretHeader: "X-Rehearsa-Secret", Secret: "shh"}
	transport := NewWebhookTransport(cfg, nil)

	err := transport.Send(NewEvent(PolicyViolation, "demo", "min confidence not met"))
	require.NoError(t, err)
	assert.Equal(t, "shh", receivedSecret)
}

func TestWebhookTransport_RetriesOnServerErrorThenSucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &WebhookConfig{URL: server.URL, MaxRetries: 3}
	transport := NewWebhookTransport(cfg, nil)
	transport.sleep = func(time.Duration) {}

	err := transport.Send(NewEvent(BaselineDrift, "demo", "drift detected"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestWebhookTransport_NonRetryableClientErrorStopsImmediately(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := &WebhookConfig{URL: server.URL, MaxRetries: 3}
	transport := NewWebhookTransport(cfg, nil)
	transport.sleep = func(time.Duration) {}

	err := transport.Send(NewEvent(PolicyViolation, "demo", "bad payload"))
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestWebhookTransport_ExhaustsRetriesAndFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := &WebhookConfig{URL: server.URL, MaxRetries: 2}
	transport := NewWebhookTransport(cfg, nil)
	transport.sleep = func(time.Duration) {}

	err := transport.Send(NewEvent(RehearsalFatalError, "demo", "runtime error"))
	assert.Error(t, err)
}

type stubTransport struct {
	err   error
	calls int
}

func (s *stubTransport) Send(Event) error {
	s.calls++
	return s.err
}

func TestDispatcher_FiresBothChannelsIndependently(t *testing.T) {
	webhook := &stubTransport{err: assertErr}
	email := &stubTransport{}

	registry := NewRegistry()
	registry.SetStack("demo", Channel{
		Webhook: &WebhookConfig{URL: "http://example.invalid"},
		Email:   &EmailConfig{SMTPHost: "localhost", SMTPPort: 25},
	})

	d := NewDispatcher(registry, nil)
	d.webhookTransportFor = func(*WebhookConfig) Transport { return webhook }
	d.emailTransportFor = func(*EmailConfig) Transport { return email }

	d.Dispatch(NewEvent(PolicyViolation, "demo", "violation"))

	assert.Equal(t, 1, webhook.calls)
	assert.Equal(t, 1, email.calls)
}

func TestDispatcher_NoChannelConfiguredIsNoop(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil)
	d.Dispatch(NewEvent(PolicyViolation, "unconfigured", "violation"))
}

var assertErr = &stubError{"delivery failed"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }
