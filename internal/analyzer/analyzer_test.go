package analyzer

import (
	"testing"

	"contactminer/internal/blocklist"
)

// A page with exactly 0 anchors AND HTTP 200 is classified BLOCKED
// by the analyzer's anchor-count < 3 rule.
func TestClassifyZeroAnchorsIsBlocked(t *testing.T) {
	html := `<html><body><p>Please verify you are human</p></body></html>`
	r := classify(html, "https://example.com/exhibitors", 200, blocklist.Default)
	if r.PageType != PageBlocked {
		t.Fatalf("expected BLOCKED, got %s", r.PageType)
	}
}

func TestClassifyHTTPBlockedStatus(t *testing.T) {
	r := classify(`<html></html>`, "https://example.com", 403, blocklist.Default)
	if r.PageType != PageBlocked {
		t.Fatalf("expected BLOCKED for 403, got %s", r.PageType)
	}
}

func TestClassifyDocumentViewer(t *testing.T) {
	html := `<html><body>
		<div id="p:1">...</div><div id="p:2">...</div><div id="p:3">...</div>
		<canvas></canvas><canvas></canvas>
		<div class="flipbook"></div>
		<a href="/a">link</a><a href="/b">link</a><a href="/c">link</a>
	</body></html>`
	r := classify(html, "https://viewer.example.com/brochure", 200, blocklist.Default)
	if r.PageType != PageDocumentViewer {
		t.Fatalf("expected DOCUMENT_VIEWER, got %s (score inputs present)", r.PageType)
	}
}

func TestClassifyDirectoryPrecedesTable(t *testing.T) {
	html := `<html><body><table><tr><td>a@b.com</td></tr></table>
		<a href="/1">1</a><a href="/2">2</a><a href="/3">3</a></body></html>`
	r := classify(html, "https://www.yellowpages.com/search", 200, blocklist.Default)
	if r.PageType != PageDirectory {
		t.Fatalf("expected DIRECTORY to take precedence over EXHIBITOR_TABLE, got %s", r.PageType)
	}
}

func TestClassifyPaginatedListing(t *testing.T) {
	html := `<html><body>
		<a href="/exhibitors?page=1">1</a><a href="/exhibitors?page=2">2</a>
		<a href="/exhibitors?page=3">3</a><a href="/exhibitors?page=4">4</a>
	</body></html>`
	r := classify(html, "https://example.com/exhibitors?page=1", 200, blocklist.Default)
	if r.PageType != PagePaginated {
		t.Fatalf("expected PAGINATED, got %s", r.PageType)
	}
	if !r.Recommendation.NeedsPagination {
		t.Fatalf("expected NeedsPagination=true")
	}
}

func TestClassifyErrorStatus(t *testing.T) {
	r := classify(`<html></html>`, "https://example.com", 503, blocklist.Default)
	if r.PageType != PageError {
		t.Fatalf("expected ERROR for 5xx, got %s", r.PageType)
	}
}
