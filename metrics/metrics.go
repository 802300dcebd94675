package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Instrument names
const (
	MessagesSent        = "duochat.messages.sent"
	PushFailures        = "duochat.push.failures"
	PresenceTransitions = "duochat.presence.transitions"
	TypingStarts        = "duochat.typing.starts"
	ActiveSessions      = "duochat.sessions.active"
)

// jsonKeys maps instrument names onto the /metrics field names.
var jsonKeys = map[string]string{
	MessagesSent:        "messages_sent_total",
	PushFailures:        "push_failures_total",
	PresenceTransitions: "presence_transitions_total",
	TypingStarts:        "typing_starts_total",
	ActiveSessions:      "active_sessions",
}

// Metrics counts delivery activity on an OpenTelemetry meter provider. A
// manual reader on the same provider backs the /metrics endpoint. All
// recording methods are safe on a nil receiver.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	messages metric.Int64Counter
	failures metric.Int64Counter
	presence metric.Int64Counter
	typing   metric.Int64Counter
	sessions metric.Int64UpDownCounter
}

// New builds a meter provider with its own manual reader. Extra options,
// such as additional exporting readers, are passed to the provider.
func New(opts ...sdkmetric.Option) (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(append([]sdkmetric.Option{sdkmetric.WithReader(reader)}, opts...)...)
	meter := provider.Meter("duochat")

	m := &Metrics{provider: provider, reader: reader}
	var err error
	if m.messages, err = meter.Int64Counter(MessagesSent, metric.WithDescription("Messages persisted")); err != nil {
		return nil, err
	}
	if m.failures, err = meter.Int64Counter(PushFailures, metric.WithDescription("Live pushes that could not be delivered")); err != nil {
		return nil, err
	}
	if m.presence, err = meter.Int64Counter(PresenceTransitions, metric.WithDescription("Online and offline transitions")); err != nil {
		return nil, err
	}
	if m.typing, err = meter.Int64Counter(TypingStarts, metric.WithDescription("typing-start events emitted")); err != nil {
		return nil, err
	}
	if m.sessions, err = meter.Int64UpDownCounter(ActiveSessions, metric.WithDescription("Live WebSocket sessions")); err != nil {
		return nil, err
	}
	return m, nil
}

// Provider exposes the meter provider so it can be installed globally.
func (m *Metrics) Provider() metric.MeterProvider {
	return m.provider
}

// Shutdown flushes and stops every reader on the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func (m *Metrics) IncMessage() {
	if m == nil {
		return
	}
	m.messages.Add(context.Background(), 1)
}

func (m *Metrics) IncPushFailure() {
	if m == nil {
		return
	}
	m.failures.Add(context.Background(), 1)
}

func (m *Metrics) IncPresence() {
	if m == nil {
		return
	}
	m.presence.Add(context.Background(), 1)
}

func (m *Metrics) IncTyping() {
	if m == nil {
		return
	}
	m.typing.Add(context.Background(), 1)
}

func (m *Metrics) AddSessions(delta int64) {
	if m == nil {
		return
	}
	m.sessions.Add(context.Background(), delta)
}

// Snapshot collects the current value of every instrument. Instruments
// that have not recorded yet report zero.
func (m *Metrics) Snapshot(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(jsonKeys))
	if m == nil {
		return out, nil
	}
	for _, key := range jsonKeys {
		out[key] = 0
	}

	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	for _, scope := range rm.ScopeMetrics {
		for _, rec := range scope.Metrics {
			key, ok := jsonKeys[rec.Name]
			if !ok {
				continue
			}
			sum, ok := rec.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			out[key] = total
		}
	}
	return out, nil
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap, err := m.Snapshot(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "metrics unavailable"})
		return
	}
	_ = json.NewEncoder(w).Encode(snap)
}
