package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseAllowList(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    int
	}{
		{"empty list", nil, 0},
		{"single IP", []string{"192.168.1.1"}, 1},
		{"CIDR notation", []string{"192.168.0.0/16", "10.0.0.0/8"}, 2},
		{"mixed with spaces", []string{"192.168.1.1", "10.0.0.0/8", " 172.16.0.1 ", ""}, 3},
		{"invalid skipped", []string{"192.168.1.1", "invalid", "10.0.0.0/99"}, 1},
		{"IPv6", []string{"::1", "fe80::/10"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseAllowList(tt.entries, discardLogger()); len(got) != tt.want {
				t.Errorf("ParseAllowList() returned %d prefixes, want %d", len(got), tt.want)
			}
		})
	}
}

func TestAllowList_Allows(t *testing.T) {
	list := ParseAllowList([]string{
		"192.168.1.100",
		"10.1.2.3/8",
		"::1",
		"fe80::/10",
	}, discardLogger())

	tests := []struct {
		addr string
		want bool
	}{
		{"192.168.1.100", true},
		{"192.168.1.101", false},
		{"10.255.255.255", true},
		{"11.0.0.1", false},
		{"::ffff:192.168.1.100", true},
		{"::1", true},
		{"fe80::1", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := list.Allows(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Errorf("Allows(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}

	if list.Allows(netip.Addr{}) {
		t.Error("Allows(invalid) = true, want false")
	}
	if !AllowList(nil).Allows(netip.Addr{}) {
		t.Error("empty list should allow everyone")
	}
}

func TestProxies_ClientAddr(t *testing.T) {
	proxies := ParseProxies([]string{"127.0.0.1", "10.10.0.0/16"}, discardLogger())

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.168.1.100:12345", nil, "192.168.1.100"},
		{"untrusted peer ignores forwarded", "198.51.100.7:1", map[string]string{"X-Forwarded-For": "10.0.0.1"}, "198.51.100.7"},
		{"untrusted peer ignores real ip", "198.51.100.7:1", map[string]string{"X-Real-IP": "172.16.0.1"}, "198.51.100.7"},
		{"forwarded list takes last untrusted hop", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "10.0.0.1, 192.168.1.1"}, "192.168.1.1"},
		{"trusted hops skipped", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.10.3.4"}, "203.0.113.9"},
		{"spoofed left entry ignored", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.9"}, "203.0.113.9"},
		{"real ip", "127.0.0.1:1", map[string]string{"X-Real-IP": "172.16.0.1"}, "172.16.0.1"},
		{"forwarded wins", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "10.0.0.1", "X-Real-IP": "172.16.0.1"}, "10.0.0.1"},
		{"garbage header falls through", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "unknown"}, "127.0.0.1"},
		{"no port", "10.1.1.1", nil, "10.1.1.1"},
		{"ipv6 peer", "[::1]:443", nil, "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := proxies.ClientAddr(req); got.String() != tt.want {
				t.Errorf("ClientAddr() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestProxies_Empty(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "127.0.0.1:1"
	req.Header.Set("X-Forwarded-For", "192.168.1.5")

	if got := Proxies(nil).ClientAddr(req); got.String() != "127.0.0.1" {
		t.Errorf("ClientAddr() = %v, want socket peer", got)
	}
}

func TestServerHandler(t *testing.T) {
	m := New()
	m.HistoryExportsTotal.WithLabelValues("csv").Inc()

	s := NewServer(m, "", "", []string{"192.168.1.0/24"}, discardLogger())

	tests := []struct {
		name       string
		path       string
		remoteAddr string
		wantStatus int
	}{
		{"allowed scrape", "/metrics", "192.168.1.5:1000", http.StatusOK},
		{"denied scrape", "/metrics", "10.0.0.1:1000", http.StatusForbidden},
		{"health unfiltered", "/health", "10.0.0.1:1000", http.StatusOK},
	}

	t.Run("forwarded header ignored", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/metrics", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		req.Header.Set("X-Forwarded-For", "192.168.1.5")
		rec := httptest.NewRecorder()

		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()

			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.path == "/metrics" && rec.Code == http.StatusOK &&
				!strings.Contains(rec.Body.String(), "outreach_history_exports_total") {
				t.Error("scrape output missing outreach_history_exports_total")
			}
		})
	}
}
