package server

import (
	"net/url"
	"strings"
	"testing"

	"github.com/ferrolog/oauth-server/storage"
)

func TestValidateRedirectURI(t *testing.T) {
	client := &storage.Client{RedirectURI: "https://app.example.com/callback"}

	tests := []struct {
		name     string
		supplied string
		want     string
		wantErr  string
	}{
		{"omitted uses registered", "", "https://app.example.com/callback", ""},
		{"exact match", "https://app.example.com/callback", "https://app.example.com/callback", ""},
		{"same host different path", "https://app.example.com/other?x=1", "https://app.example.com/other?x=1", ""},
		{"different host", "https://evil.example.net/callback", "", ErrorInvalidRequest},
		{"subdomain is a different host", "https://sub.app.example.com/callback", "", ErrorInvalidRequest},
		{"no hostname", "not-a-url", "", ErrorInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateRedirectURI(client, tt.supplied)
			if tt.wantErr != "" {
				if err == nil || err.Code != tt.wantErr {
					t.Fatalf("error = %v, want code %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("uri = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMakeRedirectURL(t *testing.T) {
	t.Run("preserves existing query params", func(t *testing.T) {
		got := makeRedirectURL("https://app.example.com/cb?x=1", "code", "abc", "state", "xyz")
		u, err := url.Parse(got)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		q := u.Query()
		if q.Get("x") != "1" || q.Get("code") != "abc" || q.Get("state") != "xyz" {
			t.Errorf("query = %v", q)
		}
	})

	t.Run("skips empty values", func(t *testing.T) {
		got := makeRedirectURL("https://app.example.com/cb", "code", "abc", "state", "")
		if strings.Contains(got, "state") {
			t.Errorf("empty state must be omitted, got %q", got)
		}
	})

	t.Run("encodes descriptions", func(t *testing.T) {
		got := makeRedirectURL("https://app.example.com/cb", "error", "invalid_request", "error_description", "client_id missing")
		u, err := url.Parse(got)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if u.Query().Get("error_description") != "client_id missing" {
			t.Errorf("error_description = %q", u.Query().Get("error_description"))
		}
	})
}
