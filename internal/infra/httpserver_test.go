package infra

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestHTTPServerRunsShutdownHooks(t *testing.T) {
	srv := NewHTTPServer(&Config{Port: "0"}, http.NotFoundHandler(), NopLogger())
	if srv.Addr() != ":0" {
		t.Fatalf("Addr = %q", srv.Addr())
	}
	hooked := make(chan struct{})
	srv.OnShutdown(func() { close(hooked) })

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-hooked:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hook not called")
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned %v after shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
}
