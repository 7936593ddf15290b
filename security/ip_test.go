package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		trustProxy bool
		proxyCount int
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "192.0.2.10:34567",
			want:       "192.0.2.10",
		},
		{
			name:       "xff ignored without trust",
			remoteAddr: "192.0.2.10:34567",
			xff:        "203.0.113.7",
			want:       "192.0.2.10",
		},
		{
			name:       "single trusted proxy",
			remoteAddr: "10.0.0.1:1234",
			xff:        "203.0.113.7",
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "two trusted proxies",
			remoteAddr: "10.0.0.1:1234",
			xff:        "203.0.113.7, 10.0.0.2",
			trustProxy: true,
			proxyCount: 2,
			want:       "203.0.113.7",
		},
		{
			name:       "invalid xff falls through to real ip",
			remoteAddr: "10.0.0.1:1234",
			xff:        "not-an-ip",
			xRealIP:    "203.0.113.9",
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "all headers invalid",
			remoteAddr: "10.0.0.1:1234",
			xff:        "garbage",
			xRealIP:    "also-garbage",
			trustProxy: true,
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := GetClientIP(r, tt.trustProxy, tt.proxyCount); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
