package reporter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestClientPublish(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("X-Worker-Token") != "tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	c := &Client{BaseURL: srv.URL, Token: "tok", Client: srv.Client()}
	if err := c.Publish(context.Background(), Event{Stage: "zip", DatasetType: "src", Status: StatusSucceeded}); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	if got.Stage != "zip" || got.DatasetType != "src" {
		t.Fatalf("unexpected event: %+v", got)
	}

	bad := &Client{BaseURL: srv.URL, Token: "wrong", Client: srv.Client()}
	if err := bad.Publish(context.Background(), Event{Stage: "zip"}); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	if err := c.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedisSink(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := NewRedisSink("redis://"+mr.Addr(), "test:events")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	for _, stage := range []string{"zip", "ingest"} {
		if err := s.Publish(ctx, Event{Run: "r1", Stage: stage, Status: StatusSucceeded}); err != nil {
			t.Fatalf("publish %s: %v", stage, err)
		}
	}
	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].Stage != "zip" || items[1].Stage != "ingest" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].Timestamp == 0 {
		t.Fatal("expected timestamp to be filled")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"default", Options{}, false},
		{"none", Options{Backend: "none"}, false},
		{"http", Options{Backend: "http", ControlPlaneURL: "http://cp/"}, false},
		{"http missing url", Options{Backend: "http"}, true},
		{"redis missing url", Options{Backend: "redis"}, true},
		{"redis", Options{Backend: "redis", RedisURL: "redis://localhost:6379/0"}, false},
		{"kafka missing brokers", Options{Backend: "kafka"}, true},
		{"kafka", Options{Backend: "kafka", KafkaBrokers: "k1:9092,k2:9092"}, false},
		{"unknown", Options{Backend: "carrier-pigeon"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%+v) err=%v, wantErr=%v", tt.opts, err, tt.wantErr)
			}
			if err == nil && s == nil {
				t.Fatal("expected a sink")
			}
		})
	}
	s, _ := New(Options{Backend: "http", ControlPlaneURL: "http://cp/"})
	if c := s.(*Client); c.BaseURL != "http://cp" {
		t.Fatalf("expected trimmed base url, got %q", c.BaseURL)
	}
}
