// Package metrics exposes Prometheus counters/gauges for the agent. It is
// an ambient concern (observability), wired regardless of the relay
// protocol's Non-goals per SPEC_FULL.md §2.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "starbeam"

// Metrics holds every series the agent exports. All methods are safe to
// call on a nil *Metrics (metrics are optional; see SPEC_FULL.md §4.5.1),
// which makes wiring them into hot paths unconditional.
type Metrics struct {
	Registry *prometheus.Registry

	controlState     prometheus.Gauge
	httpRequestsTotal *prometheus.CounterVec
	rtspRequestsTotal *prometheus.CounterVec
	udpBytesTotal     *prometheus.CounterVec
	udpChannelsActive *prometheus.GaugeVec
}

// New creates a Metrics instance registered against its own registry, so
// embedding it never collides with the default global registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		controlState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "control_state",
			Help:      "Control client connection state: 0=Disconnected 1=Connecting 2=Connected 3=Registered 4=Error.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Tunneled HTTP/HTTPS requests forwarded to the local server.",
		}, []string{"method", "status"}),
		rtspRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtsp_requests_total",
			Help:      "Tunneled RTSP requests forwarded to the local server.",
		}, []string{"method", "status"}),
		udpBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "udp_bytes_total",
			Help:      "UDP bytes forwarded, by channel and direction.",
		}, []string{"channel", "direction"}),
		udpChannelsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "udp_channels_active",
			Help:      "Whether a UDP channel is currently live (1) or not (0).",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		m.controlState,
		m.httpRequestsTotal,
		m.rtspRequestsTotal,
		m.udpBytesTotal,
		m.udpChannelsActive,
	)
	return m
}

// SetControlState records the numeric connection-state value.
func (m *Metrics) SetControlState(state int) {
	if m == nil {
		return
	}
	m.controlState.Set(float64(state))
}

// ObserveHTTPRequest records a completed tunneled HTTP/HTTPS forward.
func (m *Metrics) ObserveHTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, statusLabel(status)).Inc()
}

// ObserveRTSPRequest records a completed tunneled RTSP forward.
func (m *Metrics) ObserveRTSPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.rtspRequestsTotal.WithLabelValues(method, statusLabel(status)).Inc()
}

// AddUDPBytes adds n bytes to the channel/direction counter. direction is
// "to_relay" or "to_local".
func (m *Metrics) AddUDPBytes(channel, direction string, n int) {
	if m == nil {
		return
	}
	m.udpBytesTotal.WithLabelValues(channel, direction).Add(float64(n))
}

// SetUDPChannelActive records whether a channel is currently live.
func (m *Metrics) SetUDPChannelActive(channel string, active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1.0
	}
	m.udpChannelsActive.WithLabelValues(channel).Set(v)
}

func statusLabel(status int) string {
	if status <= 0 {
		return "error"
	}
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
