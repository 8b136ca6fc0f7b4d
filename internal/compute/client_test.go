package compute

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"http", "http://nova:8774", false},
		{"https with trailing slash", "https://nova.example.com/compute/", false},
		{"no scheme", "nova:8774", true},
		{"ftp", "ftp://nova", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.url, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient(%q) err = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err == nil && c.HTTPClient.Timeout != 60*time.Second {
				t.Errorf("default timeout = %v, want 60s", c.HTTPClient.Timeout)
			}
		})
	}
}

func TestForward_RelaysRequestAndResponse(t *testing.T) {
	var (
		gotMethod, gotPath, gotQuery, gotBody, gotToken, gotXFF, gotConn string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotQuery = r.Method, r.URL.Path, r.URL.RawQuery
		gotToken = r.Header.Get("X-Auth-Token")
		gotXFF = r.Header.Get("X-Forwarded-For")
		gotConn = r.Header.Get("Keep-Alive")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("X-Compute-Request-Id", "req-1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"server":{"id":"1234"}}`))
	}))
	defer upstream.Close()

	c, err := NewClient(upstream.URL+"/compute", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	in := httptest.NewRequest(http.MethodPost, "/v2.1/proj/servers?dry=1", strings.NewReader("ignored"))
	in.Header.Set("X-Auth-Token", "bob:pw")
	in.Header.Set("Keep-Alive", "timeout=5")
	in.RemoteAddr = "10.1.2.3:5555"

	resp, err := c.Forward(context.Background(), in, []byte(`{"server":{"name":"vm"}}`))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/compute/v2.1/proj/servers" || gotQuery != "dry=1" {
		t.Errorf("upstream saw %s %s?%s", gotMethod, gotPath, gotQuery)
	}
	if gotBody != `{"server":{"name":"vm"}}` {
		t.Errorf("upstream body = %q", gotBody)
	}
	if gotToken != "bob:pw" {
		t.Errorf("X-Auth-Token = %q, want forwarded", gotToken)
	}
	if gotXFF != "10.1.2.3" {
		t.Errorf("X-Forwarded-For = %q, want 10.1.2.3", gotXFF)
	}
	if gotConn != "" {
		t.Errorf("hop-by-hop Keep-Alive forwarded: %q", gotConn)
	}

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d, want 202", resp.StatusCode)
	}
	if resp.Header.Get("X-Compute-Request-Id") != "req-1" {
		t.Errorf("response header not relayed: %v", resp.Header)
	}
	if string(resp.Body) != `{"server":{"id":"1234"}}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestForward_UpstreamUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	c, _ := NewClient(url, time.Second)
	in := httptest.NewRequest(http.MethodDelete, "/v2/proj/servers/vm-1", nil)
	if _, err := c.Forward(context.Background(), in, nil); err == nil {
		t.Error("Forward() = nil error, want unreachable error")
	}
}
