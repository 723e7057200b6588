package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/shared"
)

func tagger(name string, order *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*order = append(*order, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Patterns", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "pong")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
			t.Errorf("expected 200 pong, got %d %q", rec.Code, rec.Body.String())
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		router := NewBasicRouter()
		router.Use(tagger("outer", &order), tagger("inner", &order))
		router.Handle(http.MethodGet, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if strings.Join(order, ",") != "outer,inner,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("Chain", func(t *testing.T) {
		var order []string
		h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}), tagger("a", &order), tagger("b", &order))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if strings.Join(order, ",") != "a,b,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})
}

func TestMiddleware(t *testing.T) {
	logger := log.New(io.Discard)

	t.Run("Recoverer", func(t *testing.T) {
		h := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error":"internal error"`) {
			t.Errorf("expected JSON error body, got %s", rec.Body.String())
		}
	})

	t.Run("RequestLogger Records Status", func(t *testing.T) {
		var buf strings.Builder
		h := RequestLogger(log.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))

		if !strings.Contains(buf.String(), "status=418") || !strings.Contains(buf.String(), "path=/tea") {
			t.Errorf("expected status and path in log, got %q", buf.String())
		}
	})

	t.Run("CORS", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodPost, "/results", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))
		h := Chain(router, CORS("*"))

		preflight := httptest.NewRequest(http.MethodOptions, "/results", nil)
		preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, preflight)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204 for preflight, got %d", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("expected allow-origin header, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
		}

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/results", nil))
		if rec.Code != http.StatusCreated || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("expected handler response with CORS header, got %d", rec.Code)
		}
	})

	t.Run("CORS Disabled", func(t *testing.T) {
		h := CORS("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("expected no CORS header when origin is empty")
		}
	})
}

func TestServe(t *testing.T) {
	logger := log.New(io.Discard)

	t.Run("Shuts Down On Cancel", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to reserve port: %v", err)
		}
		addr := ln.Addr().String()
		ln.Close()

		srv := NewServer(shared.ServerConfig{Addr: addr}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "ok")
		}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- Serve(ctx, srv, time.Second, logger) }()

		var resp *http.Response
		for i := 0; i < 50; i++ {
			if resp, err = http.Get(fmt.Sprintf("http://%s/", addr)); err == nil {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		if err != nil {
			t.Fatalf("server never came up: %v", err)
		}
		resp.Body.Close()

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("expected clean shutdown, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	})

	t.Run("Listen Failure", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to reserve port: %v", err)
		}
		defer ln.Close()

		srv := NewServer(shared.ServerConfig{Addr: ln.Addr().String()}, http.NotFoundHandler())
		err = Serve(context.Background(), srv, time.Second, logger)
		if err == nil || !strings.Contains(err.Error(), "failed to listen") {
			t.Errorf("expected listen error, got %v", err)
		}
	})

	t.Run("Default Read Header Timeout", func(t *testing.T) {
		srv := NewServer(shared.ServerConfig{Addr: "127.0.0.1:0"}, http.NotFoundHandler())
		if srv.ReadHeaderTimeout != 5*time.Second {
			t.Errorf("expected 5s default, got %v", srv.ReadHeaderTimeout)
		}
	})
}

func TestStatusFor(t *testing.T) {
	tc := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("wrap: %w", shared.ErrInvalidInput), want: http.StatusBadRequest},
		{err: shared.ErrUnknownRegion, want: http.StatusBadRequest},
		{err: shared.ErrNotFound, want: http.StatusNotFound},
		{err: fmt.Errorf("%w: breaker open", shared.ErrCatalogUnavailable), want: http.StatusBadGateway},
		{err: shared.ErrCatalogRequest, want: http.StatusBadGateway},
		{err: context.Canceled, want: http.StatusServiceUnavailable},
		{err: shared.ErrPersistence, want: http.StatusInternalServerError},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tc {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
