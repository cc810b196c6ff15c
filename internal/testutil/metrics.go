package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeMetrics renders the default Prometheus registry in text format.
func ScrapeMetrics(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler returned status %d", rec.Code)
	}
	return rec.Body.String()
}

// MetricValue finds the sample named metricName whose labels include all of
// labels and returns its value.
// Format: metric_name{label1="value1",label2="value2"} value
func MetricValue(metrics, metricName string, labels map[string]string) (float64, bool) {
	for _, line := range strings.Split(metrics, "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rest, ok := strings.CutPrefix(line, metricName)
		if !ok {
			continue
		}

		got := make(map[string]string)
		if strings.HasPrefix(rest, "{") {
			end := strings.Index(rest, "}")
			if end == -1 {
				continue
			}
			for _, pair := range strings.Split(rest[1:end], ",") {
				k, v, found := strings.Cut(pair, "=")
				if found {
					got[strings.TrimSpace(k)] = strings.Trim(v, `"`)
				}
			}
			rest = rest[end+1:]
		} else if !strings.HasPrefix(rest, " ") {
			// A longer metric name sharing the prefix.
			continue
		}

		match := true
		for k, v := range labels {
			if got[k] != v {
				match = false
				break
			}
		}
		if !match {
			continue
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			continue
		}
		return value, true
	}
	return 0, false
}

// AssertMetricIncreased fails unless the sample grew by at least delta between scrapes.
func AssertMetricIncreased(t *testing.T, before, after, metricName string, labels map[string]string, delta float64) {
	t.Helper()
	b, _ := MetricValue(before, metricName, labels)
	a, ok := MetricValue(after, metricName, labels)
	if !ok {
		t.Fatalf("metric %q with labels %v not found", metricName, labels)
	}
	if a-b < delta {
		t.Errorf("metric %q %v grew by %v, want at least %v", metricName, labels, a-b, delta)
	}
}
