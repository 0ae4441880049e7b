package controlapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dridi14/p1-router/internal/controlplane"
)

func TestHealthzAndStatus(t *testing.T) {
	cp := controlplane.New()
	s := New(cp, "http://localhost:3000", false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("get /status: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp2.StatusCode)
	}
}

func TestInterfacesEndpoint(t *testing.T) {
	cp := controlplane.New()
	s := New(cp, "http://localhost:3000", false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/interfaces")
	if err != nil {
		t.Fatalf("get /interfaces: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPatchEnabledEndpoint(t *testing.T) {
	cp := controlplane.New()
	s := New(cp, "http://localhost:3000", false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/patch/enabled", "application/json", strings.NewReader(`{"enabled":true}`))
	if err != nil {
		t.Fatalf("post /patch/enabled: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !s.patchOn {
		t.Error("expected patchOn to be true after enabling")
	}
}
