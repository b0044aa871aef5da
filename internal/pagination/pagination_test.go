package pagination

import (
	"testing"

	"contactminer/internal/model"
)

func TestBuildPageURLQueryToken(t *testing.T) {
	got := BuildPageURL("https://example.com/exhibitors?category=tech", 3)
	if got != "https://example.com/exhibitors?category=tech&page=3" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestBuildPageURLPathToken(t *testing.T) {
	got := BuildPageURL("https://example.com/exhibitors/page/1", 4)
	if got != "https://example.com/exhibitors/page/4" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestDetectTotalPagesFromProse(t *testing.T) {
	html := `<p>Showing results, Page 2 of 7</p>`
	if n := DetectTotalPages(html, "https://example.com"); n != 7 {
		t.Fatalf("expected 7 pages, got %d", n)
	}
}

func TestDetectTotalPagesClamps(t *testing.T) {
	html := `<p>Page 1 of 500</p>`
	n := DetectTotalPages(html, "https://example.com")
	if n < MinDetectedPages || n >= MaxDetectedPages {
		t.Fatalf("expected clamp to [%d,%d), got %d", MinDetectedPages, MaxDetectedPages, n)
	}
}

// Pagination safety: GeneratePageURLs(u, {max_pages: k}) returns at
// most k URLs and the first equals BuildPageURL(u, 1).
func TestGeneratePageURLsSafety(t *testing.T) {
	base := "https://example.com/exhibitors?page=1"
	html := `<p>Page 1 of 50</p>`

	urls, total, detected, err := GeneratePageURLs(base, GenerateOptions{MaxPages: 5, Page1HTML: html}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urls) > 5 {
		t.Fatalf("expected at most 5 urls, got %d", len(urls))
	}
	if urls[0] != BuildPageURL(base, 1) {
		t.Fatalf("first url must equal BuildPageURL(u,1): got %s", urls[0])
	}
	if total != 50 {
		t.Fatalf("expected detected total 50, got %d", total)
	}
	if !detected {
		t.Fatalf("expected detected=true")
	}
}

func TestGeneratePageURLsForceCount(t *testing.T) {
	urls, total, detected, err := GeneratePageURLs("https://example.com", GenerateOptions{MaxPages: 10, ForceCount: 3}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urls) != 3 || total != 3 || detected {
		t.Fatalf("expected forced count to skip detection: urls=%d total=%d detected=%v", len(urls), total, detected)
	}
}

// Content-hash stability: same first-5 items, different remainder,
// produces identical strings.
func TestContentHashStability(t *testing.T) {
	base := []model.Card{
		{ContactName: "Alice", Emails: []string{"alice@example.com"}},
		{ContactName: "Bob", Emails: []string{"bob@example.com"}},
		{ContactName: "Erin", Emails: []string{"erin@example.com"}},
		{ContactName: "Frank", Emails: []string{"frank@example.com"}},
		{ContactName: "Grace", Emails: []string{"grace@example.com"}},
	}
	a := append(append([]model.Card{}, base...), model.Card{ContactName: "Carol", Emails: []string{"carol@example.com"}})
	b := append(append([]model.Card{}, base...), model.Card{ContactName: "Dave", Emails: []string{"dave@example.com"}})

	ha := CreateContentHash(a)
	hb := CreateContentHash(b)
	if ha != hb {
		t.Fatalf("expected identical hash for identical first-5 items, got %s vs %s", ha, hb)
	}
}

func TestContentHashOrderIndependent(t *testing.T) {
	a := []model.Card{
		{ContactName: "Alice", Emails: []string{"alice@example.com"}},
		{ContactName: "Bob", Emails: []string{"bob@example.com"}},
	}
	b := []model.Card{
		{ContactName: "Bob", Emails: []string{"bob@example.com"}},
		{ContactName: "Alice", Emails: []string{"alice@example.com"}},
	}
	if CreateContentHash(a) != CreateContentHash(b) {
		t.Fatalf("expected hash to be order-independent due to sort")
	}
}
