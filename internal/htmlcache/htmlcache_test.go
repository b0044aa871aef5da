package htmlcache

import (
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := New(time.Minute, 1000)
	c.Set("https://example.com/a?x=1", "<html>a</html>", Meta{HTTPCode: 200})

	e, ok := c.Get("https://example.com/a?x=1")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if e.HTML != "<html>a</html>" {
		t.Fatalf("unexpected html: %q", e.HTML)
	}

	// Query string differentiates keys.
	if _, ok := c.Get("https://example.com/a?x=2"); ok {
		t.Fatalf("expected cache miss for different query string")
	}
}

func TestSetNeverCachesBlockedCodes(t *testing.T) {
	c := New(time.Minute, 1000)
	for _, code := range []int{401, 403, 429} {
		c.Set("https://example.com/blocked", "body", Meta{HTTPCode: code})
		if _, ok := c.Get("https://example.com/blocked"); ok {
			t.Fatalf("code %d must never be cached", code)
		}
	}
}

func TestSetDropsOversizedBody(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("https://example.com/big", "this body is way over the limit", Meta{HTTPCode: 200})
	if _, ok := c.Get("https://example.com/big"); ok {
		t.Fatalf("oversized body must be dropped")
	}
}

func TestGetExpiresAfterTTL(t *testing.T) {
	c := New(time.Millisecond, 1000)
	c.Set("https://example.com/x", "body", Meta{HTTPCode: 200})
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("https://example.com/x"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}
