package steps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	r.Register(NewDelayStep())
	if r.Count() != 1 {
		t.Errorf("expected 1 step, got %d", r.Count())
	}

	step, err := r.Get("delay")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if step.Name() != "delay" {
		t.Errorf("expected delay, got %s", step.Name())
	}

	_, err = r.Get("unknown")
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}

	if !r.Has("delay") {
		t.Error("should have delay")
	}

	r.Unregister("delay")
	if r.Has("delay") {
		t.Error("should not have delay after unregister")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	want := []string{"delay", "echo", "http"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	if step, ok := r.Lookup("echo", nil); !ok || step.Name() != "echo" {
		t.Error("lookup by task name failed")
	}
	if step, ok := r.Lookup("notify", map[string]any{"handler": "http"}); !ok || step.Name() != "http" {
		t.Error("lookup by handler param failed")
	}
	if _, ok := r.Lookup("notify", nil); ok {
		t.Error("unknown task must not resolve")
	}
}

// Echo Step Tests

func TestEchoStep_Execute(t *testing.T) {
	req := NewRequest(uuid.New(), "echo", map[string]any{"handler": "echo", "value": 42})

	resp, err := NewEchoStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outputs["value"] != 42 {
		t.Errorf("expected value 42, got %v", resp.Outputs["value"])
	}
	if _, ok := resp.Outputs["handler"]; ok {
		t.Error("handler key should not be echoed")
	}
}

// Delay Step Tests

func TestDelayStep_Execute(t *testing.T) {
	step := NewDelayStep()
	req := NewRequest(uuid.New(), "wait", map[string]any{"duration_ms": 50})

	start := time.Now()
	resp, err := step.Execute(context.Background(), req)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("delay was too short: %v", elapsed)
	}
	if resp.Outputs["duration_ms"] != int64(50) {
		t.Errorf("expected duration_ms 50, got %v", resp.Outputs["duration_ms"])
	}
}

func TestDelayStep_Cancellation(t *testing.T) {
	step := NewDelayStep()
	req := NewRequest(uuid.New(), "wait", map[string]any{"duration_sec": 1.0})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := step.Execute(ctx, req)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestDelayStep_InvalidConfig(t *testing.T) {
	_, err := NewDelayStep().Execute(context.Background(), NewRequest(uuid.New(), "wait", nil))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// HTTP Step Tests

func TestHTTPStep_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer server.Close()

	resp, err := NewHTTPStep().Execute(context.Background(),
		NewRequest(uuid.New(), "fetch", map[string]any{"url": server.URL}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs["status_code"] != 200 {
		t.Errorf("expected status_code 200, got %v", resp.Outputs["status_code"])
	}
	body, ok := resp.Outputs["body"].(map[string]any)
	if !ok {
		t.Fatalf("expected body to be map, got %T", resp.Outputs["body"])
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}
}

func TestHTTPStep_POST_JSON(t *testing.T) {
	var receivedBody map[string]any
	var receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json")
		}
		receivedAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&receivedBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	resp, err := NewHTTPStep().Execute(context.Background(), NewRequest(uuid.New(), "push", map[string]any{
		"method":  "post",
		"url":     server.URL,
		"headers": map[string]any{"Authorization": "Bearer secret123"},
		"body":    map[string]any{"name": "test"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs["status_code"] != 201 {
		t.Errorf("expected status_code 201, got %v", resp.Outputs["status_code"])
	}
	if receivedBody["name"] != "test" {
		t.Errorf("expected name 'test', got %v", receivedBody["name"])
	}
	if receivedAuth != "Bearer secret123" {
		t.Errorf("expected auth header, got %s", receivedAuth)
	}
}

func TestHTTPStep_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	resp, err := NewHTTPStep().Execute(context.Background(),
		NewRequest(uuid.New(), "fetch", map[string]any{"url": server.URL}))

	if !IsHTTPError(err) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if resp == nil || resp.Outputs["status_code"] != http.StatusBadGateway {
		t.Errorf("partial outputs should be returned with the error")
	}
}

func TestHTTPStep_InvalidConfig(t *testing.T) {
	_, err := NewHTTPStep().Execute(context.Background(), NewRequest(uuid.New(), "fetch", nil))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestHTTPStep_Cancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPStep().Execute(ctx, NewRequest(uuid.New(), "fetch", map[string]any{"url": server.URL}))
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

// Helper Functions Tests

func TestParamHelpers(t *testing.T) {
	params := map[string]any{
		"string_val":     "test",
		"int_val":        42,
		"float_val":      3.14,
		"bool_val":       true,
		"map_val":        map[string]any{"key": "value", "n": 1},
		"string_map_val": map[string]string{"key": "value"},
		"list_val":       []any{"a", 1, "b"},
	}

	if ParamString(params, "string_val") != "test" {
		t.Error("ParamString failed")
	}
	if ParamString(params, "missing") != "" {
		t.Error("ParamString should return empty for missing")
	}
	if ParamInt(params, "int_val") != 42 || ParamInt(params, "float_val") != 3 {
		t.Error("ParamInt failed")
	}
	if !ParamBool(params, "bool_val", false) || !ParamBool(params, "missing", true) {
		t.Error("ParamBool failed")
	}
	if m := ParamStringMap(params, "map_val"); m["key"] != "value" || len(m) != 1 {
		t.Errorf("ParamStringMap(any) = %v", m)
	}
	if m := ParamStringMap(params, "string_map_val"); m["key"] != "value" {
		t.Error("ParamStringMap(string) failed")
	}
	if l := ParamStrings(params, "list_val"); len(l) != 2 || l[1] != "b" {
		t.Errorf("ParamStrings = %v", l)
	}
}
