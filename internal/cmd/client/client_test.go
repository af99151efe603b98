package client

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func execute(t *testing.T, root func() string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRoot(root)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestStatusPrintsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/run" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"runId":"r1","status":"done"}`))
	}))
	defer srv.Close()

	out, err := execute(t, func() string { return srv.URL }, "status")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, `"status": "done"`) {
		t.Fatalf("expected indented status in output, got: %s", out)
	}
}

func TestLedgerIDsFlag(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"count":2,"ids":[4,5]}`))
	}))
	defer srv.Close()

	if _, err := execute(t, func() string { return srv.URL }, "ledger", "--ids"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotQuery != "ids=1" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"No embedded bus"}`))
	}))
	defer srv.Close()

	_, err := execute(t, func() string { return srv.URL }, "deadletters", "--limit", "3")
	if err == nil || !strings.Contains(err.Error(), "No embedded bus") {
		t.Fatalf("err = %v", err)
	}
}

func TestHealthCommand(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("flocheck", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()
	t.Setenv("FLOCHECK_GRPC", lis.Addr().String())

	out, err := execute(t, func() string { return "" }, "health", "--service", "flocheck")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "status: SERVING") {
		t.Fatalf("output: %s", out)
	}
}
