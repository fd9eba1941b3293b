package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorRegistersWithOwnRegistry(t *testing.T) {
	c := New("s7link", "session")
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c.RequestsTotal.WithLabelValues("read").Inc()
	c.RequestsTotal.WithLabelValues("write").Inc()
	c.BytesSent.Add(22)
	c.BytesReceived.Add(24)
	c.DecodeErrors.WithLabelValues("tpkt").Inc()
	c.Timeouts.Inc()
	c.Connects.Inc()
	c.ObserveRoundTrip(5 * time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := make(map[string]bool, len(families))
	for _, mf := range families {
		got[mf.GetName()] = true
	}
	want := []string{
		"s7link_session_requests_total",
		"s7link_session_bytes_sent_total",
		"s7link_session_bytes_received_total",
		"s7link_session_decode_errors_total",
		"s7link_session_timeouts_total",
		"s7link_session_connects_total",
		"s7link_session_round_trip_seconds",
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("metric %s missing from registry output", name)
		}
	}
}

func TestTwoCollectorsStayIndependent(t *testing.T) {
	a := New("s7link", "a")
	b := New("s7link", "b")
	a.Timeouts.Inc()

	regB := prometheus.NewRegistry()
	if err := regB.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}
	families, err := regB.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "s7link_b_timeouts_total" {
			for _, m := range mf.GetMetric() {
				if m.GetCounter().GetValue() != 0 {
					t.Errorf("collector b saw collector a's increments")
				}
			}
		}
	}
}
