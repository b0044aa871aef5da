// Package analyzer fetches a URL and classifies its page so the
// Orchestrator can pick a miner.
package analyzer

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"contactminer/internal/blocklist"
	"contactminer/internal/htmlcache"
)

// PageType is the page classification produced by Analyze.
type PageType string

const (
	PageError           PageType = "error"
	PageBlocked         PageType = "blocked"
	PageDirectory       PageType = "directory"
	PageDocumentViewer  PageType = "document-viewer"
	PageExhibitorTable  PageType = "table"
	PagePaginated       PageType = "paginated"
	PageExhibitorList   PageType = "list"
	PageSingle          PageType = "single"
	PageDynamic         PageType = "dynamic"
	PageUnknown         PageType = "unknown"
)

// MinerName is an opaque identifier of a recommended miner; the
// orchestrator/miners package resolves it to a concrete Miner.
type MinerName string

const (
	MinerHTTPBasic      MinerName = "http_basic"
	MinerBrowserDetail  MinerName = "browser_list_detail"
	MinerTable          MinerName = "table"
	MinerDirectory      MinerName = "directory"
	MinerDocument       MinerName = "document"
	MinerAI             MinerName = "ai"
)

// Recommendation is what the analyzer suggests the Orchestrator do next.
type Recommendation struct {
	Miner           MinerName
	UseCache        bool
	Reason          string
	NeedsPagination bool
	OwnPagination   bool
}

// Result is the full classification of one page.
type Result struct {
	PageType         PageType
	PaginationType   string
	HasEmails        bool
	EmailCount       int
	HasTable         bool
	HasDetailLinks   bool
	DetailLinkCount  int
	IsDocumentViewer bool
	IsDirectory      bool
	FromCache        bool
	HTTPCode         int
	Recommendation   Recommendation
}

// emailRe matches a plausible email address in page text.
var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// imageExtRe excludes emails whose domain is actually an image filename
// mistakenly matched (e.g. "photo@2x.png" style sprites).
var imageExtRe = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|svg|webp)$`)

var detailTokenRe = regexp.MustCompile(`(?i)(exhibitor|company|profile|member|vendor|supplier|participant)`)

var spaMarkerRe = regexp.MustCompile(`__NEXT_DATA__|__NUXT__|data-reactroot|ng-version|data-v-app|id="app"`)

// Analyzer fetches and classifies pages.
type Analyzer struct {
	cache     *htmlcache.Cache
	client    *http.Client
	userAgent string
	tables    blocklist.Tables
}

// Config controls fetch behavior: timeout 15s, redirects capped at 5.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
}

// New constructs an Analyzer backed by cache for HTML memoization.
func New(cache *htmlcache.Cache, cfg Config) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; ContactMinerBot/1.0)"
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &Analyzer{cache: cache, client: client, userAgent: cfg.UserAgent, tables: blocklist.Default}
}

// Fetch retrieves raw HTML for targetURL, consulting the cache first.
// It is exported so other components (pagination loops, miners) can
// reuse the same cache-aware fetch path.
func (a *Analyzer) Fetch(ctx context.Context, targetURL string) (html string, httpCode int, fromCache bool, err error) {
	if a.cache != nil {
		if e, ok := a.cache.Get(targetURL); ok {
			return e.HTML, e.Meta.HTTPCode, true, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", 0, false, err
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", resp.StatusCode, false, err
	}
	html = string(body)

	if a.cache != nil {
		a.cache.Set(targetURL, html, htmlcache.Meta{HTTPCode: resp.StatusCode, FinalURL: resp.Request.URL.String()})
	}

	return html, resp.StatusCode, false, nil
}

// Analyze fetches targetURL and produces its classification.
func (a *Analyzer) Analyze(ctx context.Context, targetURL string) (Result, error) {
	html, code, fromCache, err := a.Fetch(ctx, targetURL)
	if err != nil {
		return Result{PageType: PageError, HTTPCode: code}, err
	}

	r := classify(html, targetURL, code, a.tables)
	r.FromCache = fromCache
	return r, nil
}

// classify runs the detection passes and applies the classification
// precedence, pure of any I/O so it is
// directly unit-testable.
func classify(html, pageURL string, httpCode int, tables blocklist.Tables) Result {
	r := Result{HTTPCode: httpCode}

	if httpCode == 401 || httpCode == 403 || httpCode == 429 {
		r.PageType = PageBlocked
		r.Recommendation = Recommendation{Miner: MinerBrowserDetail, UseCache: false, Reason: "blocked status code"}
		return r
	}
	if httpCode >= 500 || httpCode == 0 {
		r.PageType = PageError
		r.Recommendation = Recommendation{Miner: MinerHTTPBasic, UseCache: false, Reason: "fetch error"}
		return r
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		r.PageType = PageError
		return r
	}

	emails := extractEmailCandidates(html)
	r.HasEmails = len(emails) > 0
	r.EmailCount = len(emails)

	r.HasTable = doc.Find("table").Length() > 0

	base, _ := url.Parse(pageURL)
	detailLinks := detailLinkCount(doc, base)
	r.HasDetailLinks = detailLinks > 0
	r.DetailLinkCount = detailLinks

	paginationType := detectPaginationType(doc, html)
	r.PaginationType = paginationType

	anchorCount := doc.Find("a").Length()
	if anchorCount < 3 && httpCode == 200 {
		// A 200 page with almost no anchors is trivially empty, matching
		// the browser miner's own block heuristic.
		r.PageType = PageBlocked
		r.Recommendation = Recommendation{Miner: MinerBrowserDetail, UseCache: false, Reason: "anchor count below block threshold"}
		return r
	}

	isDynamic := spaMarkerRe.MatchString(html) || (len(html) > 20000 && len(strings.TrimSpace(doc.Text())) < 200)

	docViewerScore := documentViewerScore(doc, html)
	r.IsDocumentViewer = docViewerScore >= 40

	host := ""
	if base != nil {
		host = base.Hostname()
	}
	r.IsDirectory = tables.IsDirectoryHost(host)

	switch {
	case r.IsDirectory:
		r.PageType = PageDirectory
		r.Recommendation = Recommendation{Miner: MinerDirectory, UseCache: true, Reason: "directory host", OwnPagination: true}
	case r.IsDocumentViewer:
		r.PageType = PageDocumentViewer
		r.Recommendation = Recommendation{Miner: MinerDocument, UseCache: true, Reason: "document viewer score >= 40"}
	case r.HasTable && r.HasEmails:
		r.PageType = PageExhibitorTable
		r.Recommendation = Recommendation{Miner: MinerTable, UseCache: true, Reason: "table with emails"}
	case paginationType != "":
		r.PageType = PagePaginated
		r.Recommendation = Recommendation{Miner: MinerBrowserDetail, UseCache: false, Reason: "paginated listing", NeedsPagination: true}
	case r.HasDetailLinks:
		r.PageType = PageExhibitorList
		r.Recommendation = Recommendation{Miner: MinerBrowserDetail, UseCache: false, Reason: "list with detail links"}
	case r.HasEmails && !isDynamic:
		r.PageType = PageSingle
		r.Recommendation = Recommendation{Miner: MinerHTTPBasic, UseCache: true, Reason: "single page with emails"}
	case isDynamic:
		r.PageType = PageDynamic
		r.Recommendation = Recommendation{Miner: MinerAI, UseCache: false, Reason: "dynamic/SPA markers present"}
	default:
		r.PageType = PageUnknown
		r.Recommendation = Recommendation{Miner: MinerHTTPBasic, UseCache: true, Reason: "no strong signal"}
	}

	return r
}

// extractEmailCandidates matches emails in text and drops matches that
// end in an image-file extension. No domain-based filtering is applied.
func extractEmailCandidates(html string) []string {
	matches := emailRe.FindAllString(html, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if imageExtRe.MatchString(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// detailLinkCount counts same-host anchors whose URL contains an
// exhibitor/company/profile/member-like token and is longer than the
// base URL, deduped.
func detailLinkCount(doc *goquery.Document, base *url.URL) int {
	if base == nil {
		return 0
	}
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(u)
		if abs.Hostname() != base.Hostname() {
			return
		}
		if !detailTokenRe.MatchString(abs.String()) {
			return
		}
		if len(abs.String()) <= len(base.String()) {
			return
		}
		seen[abs.String()] = true
	})
	return len(seen)
}

// detectPaginationType runs the ordered pagination tests:
// numbered (?page=N, /page/N), rel=next, load-more text, infinite-scroll
// hints.
func detectPaginationType(doc *goquery.Document, html string) string {
	if doc.Find(`a[href*="?page="], a[href*="/page/"]`).Length() > 0 {
		return "numbered"
	}
	if doc.Find(`link[rel="next"], a[rel="next"]`).Length() > 0 {
		return "rel_next"
	}
	lower := strings.ToLower(html)
	for _, marker := range []string{"load more", "show more", "view more"} {
		if strings.Contains(lower, marker) {
			return "load_more"
		}
	}
	if strings.Contains(lower, "infinite-scroll") || strings.Contains(lower, "data-infinite") {
		return "infinite_scroll"
	}
	return ""
}

// documentViewerScore implements the viewer-indicator scoring table:
// seo_text_pages:>=3 -> +50, canvas_count>=2 -> +20, json_api_indicator
// -> +15, flipbook_class -> +15, pdf_links -> +10.
func documentViewerScore(doc *goquery.Document, html string) int {
	score := 0

	seoPages := doc.Find(`[class*="seo-text"], [class*="seoText"], [id^="p:"]`).Length()
	if seoPages == 0 {
		seoPages = strings.Count(html, "P:")
	}
	if seoPages >= 3 {
		score += 50
	}

	if doc.Find("canvas").Length() >= 2 {
		score += 20
	}

	lower := strings.ToLower(html)
	if strings.Contains(lower, "/api/") && (strings.Contains(lower, "pages") || strings.Contains(lower, "viewer")) {
		score += 15
	}

	if doc.Find(`[class*="flipbook"], [class*="flip-book"], [class*="page-flip"]`).Length() > 0 {
		score += 15
	}

	if doc.Find(`a[href$=".pdf"]`).Length() > 0 {
		score += 10
	}

	return score
}
