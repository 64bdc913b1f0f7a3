package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestSetControlState(t *testing.T) {
	m := New()
	m.SetControlState(3)
	if got := gaugeValue(t, m.controlState); got != 3 {
		t.Errorf("control_state = %v; want 3", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.SetControlState(1)
	m.ObserveHTTPRequest("GET", 200)
	m.ObserveRTSPRequest("DESCRIBE", 200)
	m.AddUDPBytes("video", "to_relay", 10)
	m.SetUDPChannelActive("video", true)
}

func TestStatusLabelBuckets(t *testing.T) {
	cases := map[int]string{0: "error", -1: "error", 200: "2xx", 301: "3xx", 404: "4xx", 502: "5xx"}
	for status, want := range cases {
		if got := statusLabel(status); got != want {
			t.Errorf("statusLabel(%d) = %q; want %q", status, got, want)
		}
	}
}
