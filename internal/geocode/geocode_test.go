package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFallbackAddressFormat(t *testing.T) {
	t.Parallel()
	got := FallbackAddress(40.416775, -3.70379)
	want := "Coordenadas: 40.416775, -3.703790"
	if got != want {
		t.Fatalf("fallback format: got %q, want %q", got, want)
	}
}

func TestHTTPReverser(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("path %q", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("format param missing")
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("user agent required")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"display_name": "Calle Mayor 1, Madrid",
		})
	}))
	defer srv.Close()

	r := NewHTTPReverser(srv.URL, "marcaje-test/1.0")
	addr, err := r.Reverse(context.Background(), 40.416775, -3.70379)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if addr != "Calle Mayor 1, Madrid" {
		t.Fatalf("wrong address: %q", addr)
	}
}

func TestHTTPReverser_EmptyAndErrorResults(t *testing.T) {
	t.Parallel()
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"display_name": ""})
	}))
	defer empty.Close()
	if _, err := NewHTTPReverser(empty.URL, "t").Reverse(context.Background(), 1, 2); err == nil {
		t.Fatalf("empty display_name must fail")
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	if _, err := NewHTTPReverser(broken.URL, "t").Reverse(context.Background(), 1, 2); err == nil {
		t.Fatalf("non-200 must fail")
	}
}

func TestNoopAlwaysFails(t *testing.T) {
	t.Parallel()
	if _, err := (Noop{}).Reverse(context.Background(), 1, 2); err == nil {
		t.Fatalf("noop reverser must report no address")
	}
}
