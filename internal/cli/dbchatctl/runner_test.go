package dbchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunHealthCommand(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "health"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/health" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if !strings.Contains(stdout.String(), `"status": "ok"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunConnectSendsFlags(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"connected":true}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"connect", "s-1",
		"-dialect", "postgres",
		"-host", "db.internal",
		"-port", "5432",
		"-database", "chinook",
		"-trust-server-certificate=false",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/sessions/s-1/connect" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["dialect"] != "postgres" || gotBody["host"] != "db.internal" || gotBody["port"] != float64(5432) {
		t.Fatalf("body = %#v", gotBody)
	}
	if gotBody["trust_server_certificate"] != false {
		t.Fatalf("trust_server_certificate = %#v", gotBody["trust_server_certificate"])
	}
}

func TestRunConnectLeavesTrustToServerWhenUnset(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"connected":true}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "connect", "s-1", "-host", "db.internal"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if _, ok := gotBody["trust_server_certificate"]; ok {
		t.Fatalf("trust_server_certificate should be omitted, body = %#v", gotBody)
	}
}

func TestRunAskPrintsAssistantText(t *testing.T) {
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotText = body["text"]
		_, _ = w.Write([]byte(`{"assistant":{"role":"assistant","text":"I am still learning!"},"error":{"kind":"execute"}}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "s-1", "how", "many", "tracks?"}, Options{Stdout: &stdout, Stderr: &stderr})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotText != "how many tracks?" {
		t.Fatalf("text = %q", gotText)
	}
	if stdout.String() != "I am still learning!\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "turn failed: execute") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunCloseUsesDelete(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if code := Run(context.Background(), []string{"-base-url", srv.URL, "close", "s-1"}, Options{}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotMethod != http.MethodDelete || gotPath != "/v1/sessions/s-1" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_code":"SESSION_NOT_FOUND"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "transcript", "missing"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
}

func TestRunArgumentErrors(t *testing.T) {
	for _, args := range [][]string{{"unknown"}, {"ask", "s-1"}, {"transcript"}, {}} {
		var stderr bytes.Buffer
		if code := Run(context.Background(), args, Options{Stderr: &stderr}); code != 2 {
			t.Fatalf("Run(%v) exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("Run(%v) expected usage output", args)
		}
	}
}
