package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNavigateWithRetry(t *testing.T) {
	ctx := context.Background()
	errTransient := errors.New("net::ERR_CONNECTION_RESET")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		ok := navigateWithRetry(ctx, retryPolicy(3, time.Millisecond), discardLogger(), func(context.Context) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})

		if !ok {
			t.Error("expected navigation to succeed")
		}
		if calls != 3 {
			t.Errorf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("returns false after exhausting attempts", func(t *testing.T) {
		calls := 0
		ok := navigateWithRetry(ctx, retryPolicy(3, time.Millisecond), discardLogger(), func(context.Context) error {
			calls++
			return errTransient
		})

		if ok {
			t.Error("expected navigation to fail")
		}
		if calls != 3 {
			t.Errorf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("does not retry a cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		calls := 0
		ok := navigateWithRetry(cctx, retryPolicy(3, time.Millisecond), discardLogger(), func(context.Context) error {
			calls++
			return context.Canceled
		})

		if ok {
			t.Error("expected navigation to fail")
		}
		if calls > 1 {
			t.Errorf("expected at most one attempt, got %d", calls)
		}
	})
}

func TestRandomUserAgent(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		ua := RandomUserAgent()
		if ua == "" {
			t.Fatal("expected a user agent")
		}
		seen[ua] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected user agents to vary, got %d distinct", len(seen))
	}

	for _, ua := range userAgents {
		if !strings.Contains(ua, "Chrome/") || strings.Contains(ua, "Firefox") {
			t.Errorf("expected a Chromium user agent, got %q", ua)
		}
	}
}
