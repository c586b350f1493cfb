package metrics

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestServerServesHealthAndMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	srv := NewServer(ln.Addr().String(), zerolog.Nop())
	srv.SetListener(ln)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = srv.Stop() }()

	BudgetTotalMinutes.Set(42)
	UsageSecondsTotal.WithLabelValues("video").Add(30)

	body := get(t, "http://"+ln.Addr().String()+"/health")
	if body != "OK" {
		t.Errorf("Expected health body OK, got %q", body)
	}

	body = get(t, "http://"+ln.Addr().String()+"/metrics")
	for _, want := range []string{
		"qinghe_budget_total_minutes 42",
		`qinghe_usage_seconds_total{app="video"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(data)
}
