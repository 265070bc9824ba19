package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetBuildInfo(t *testing.T) {
	BuildInfo.Reset()

	SetBuildInfo("v1.0.0", "go1.24")

	if count := testutil.CollectAndCount(BuildInfo); count != 1 {
		t.Errorf("expected 1 metric, got %d", count)
	}
	if value := testutil.ToFloat64(BuildInfo.WithLabelValues("v1.0.0", "go1.24")); value != 1 {
		t.Errorf("expected value 1, got %f", value)
	}
}

func TestRecorder_ObserveUpdate(t *testing.T) {
	UpdatesTotal.Reset()
	ReconcileDuration.Reset()

	var r Recorder
	r.ObserveUpdate("home", "success", 20*time.Millisecond)
	r.ObserveUpdate("home", "success", 30*time.Millisecond)
	r.ObserveUpdate("home", "host_not_found", time.Millisecond)

	if got := testutil.ToFloat64(UpdatesTotal.WithLabelValues("home", "success")); got != 2 {
		t.Errorf("success updates = %f, want 2", got)
	}
	if got := testutil.ToFloat64(UpdatesTotal.WithLabelValues("home", "host_not_found")); got != 1 {
		t.Errorf("host_not_found updates = %f, want 1", got)
	}
	if count := testutil.CollectAndCount(ReconcileDuration); count != 1 {
		t.Errorf("expected 1 histogram series, got %d", count)
	}
}

func TestRecorder_PortalAndRequests(t *testing.T) {
	PortalSessionsTotal.Reset()
	RequestsTotal.Reset()

	var r Recorder
	r.ObservePortal("done", "success")
	r.ObservePortal("second_factor", "mfa_cookie_missing")
	r.ObserveRequest(200)
	r.ObserveRequest(401)
	r.ObserveRequest(401)

	if got := testutil.ToFloat64(PortalSessionsTotal.WithLabelValues("second_factor", "mfa_cookie_missing")); got != 1 {
		t.Errorf("portal failures = %f, want 1", got)
	}
	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("401")); got != 2 {
		t.Errorf("401 responses = %f, want 2", got)
	}
}

func TestMetricNames(t *testing.T) {
	expectedPrefix := "dynhost_"

	collectors := []prometheus.Collector{
		BuildInfo,
		UpdatesTotal,
		ReconcileDuration,
		PortalSessionsTotal,
		RequestsTotal,
	}

	for _, m := range collectors {
		ch := make(chan *prometheus.Desc, 10)
		m.Describe(ch)
		close(ch)

		for desc := range ch {
			if name := desc.String(); !strings.Contains(name, expectedPrefix) {
				t.Errorf("metric %s does not have expected prefix %s", name, expectedPrefix)
			}
		}
	}
}
