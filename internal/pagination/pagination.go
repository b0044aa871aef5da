// Package pagination enumerates page URLs for a paginated listing
// site: building the Nth page URL, detecting the total page
// count from a fetched page, generating the capped URL sequence, and
// fingerprinting a page's contacts for stop-on-duplicate loop
// detection.
package pagination

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"contactminer/internal/model"
)

const (
	// DefaultMaxPages is used when a job does not set max_pages.
	DefaultMaxPages = 20
	// MinDetectedPages and MaxDetectedPages clamp DetectTotalPages.
	MinDetectedPages = 1
	MaxDetectedPages = 200
)

var (
	numberedPagePathRe  = regexp.MustCompile(`(?i)/page/(\d+)(/)?$`)
	pageOfRe            = regexp.MustCompile(`(?i)page\s+(\d+)\s+of\s+(\d+)`)
	paginationNumberRe  = regexp.MustCompile(`^\d{1,4}$`)
)

// BuildPageURL substitutes the page token in base for n, or appends a
// page query parameter when no token is present.
func BuildPageURL(base string, n int) string {
	if n <= 1 {
		if loc := numberedPagePathRe.FindStringSubmatchIndex(base); loc != nil {
			return base[:loc[0]] + "/page/1" + base[loc[1]:]
		}
		return base
	}

	if loc := numberedPagePathRe.FindStringSubmatchIndex(base); loc != nil {
		return base[:loc[0]] + fmt.Sprintf("/page/%d", n) + base[loc[1]:]
	}

	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	if q.Get("page") != "" {
		q.Set("page", strconv.Itoa(n))
		u.RawQuery = q.Encode()
		return u.String()
	}
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// DetectTotalPages inspects pagination containers, page-number link
// text, and "page X of Y" prose to estimate the number of pages in a
// listing, clamped to [1, 200).
func DetectTotalPages(html, pageURL string) int {
	if m := pageOfRe.FindStringSubmatch(html); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			return clamp(n)
		}
	}

	max := 1
	for _, m := range numberedPagePathRe.FindAllStringSubmatch(html, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}

	// Scan bare numbers inside common pagination container markup for the
	// largest plausible page-number link text.
	lower := strings.ToLower(html)
	for _, marker := range []string{"pagination", "pager", "page-numbers", "page-nav"} {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		window := html[idx:minInt(len(html), idx+2000)]
		for _, tok := range regexp.MustCompile(`>\s*(\d{1,4})\s*<`).FindAllStringSubmatch(window, -1) {
			if n, err := strconv.Atoi(tok[1]); err == nil && paginationNumberRe.MatchString(tok[1]) && n > max && n < MaxDetectedPages {
				max = n
			}
		}
	}

	return clamp(max)
}

func clamp(n int) int {
	if n < MinDetectedPages {
		return MinDetectedPages
	}
	if n >= MaxDetectedPages {
		return MaxDetectedPages - 1
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// FetchFunc retrieves raw HTML for a URL; it abstracts over the HTML
// Cache / HTTP client so this package stays free of I/O concerns.
type FetchFunc func(u string) (html string, err error)

// GenerateOptions controls GeneratePageURLs.
type GenerateOptions struct {
	MaxPages    int
	Page1HTML   string // already-fetched first page, if any
	ForceCount  int    // overrides detection when > 0 (force_page_count)
}

// GeneratePageURLs builds the ordered list of page URLs for base,
// fetching page 1 via fetch when Page1HTML is not already supplied. It
// caps the result at opts.MaxPages (default DefaultMaxPages) and
// reports the detected total and whether detection actually ran.
func GeneratePageURLs(base string, opts GenerateOptions, fetch FetchFunc) (urls []string, total int, detected bool, err error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	page1HTML := opts.Page1HTML
	if page1HTML == "" && fetch != nil {
		page1HTML, err = fetch(BuildPageURL(base, 1))
		if err != nil {
			return nil, 0, false, err
		}
	}

	total = opts.ForceCount
	if total <= 0 {
		total = DetectTotalPages(page1HTML, base)
		detected = true
	}

	n := total
	if n > maxPages {
		n = maxPages
	}
	if n < 1 {
		n = 1
	}

	urls = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		urls = append(urls, BuildPageURL(base, i))
	}
	return urls, total, detected, nil
}

// CreateContentHash fingerprints a page's contacts from the first 5
// items, sorted, each rendered as lower(email)|lower(name). The
// same first-5 items always produce the same hash regardless of the
// remainder of the slice, which is what makes it usable as a
// stop-on-duplicate-page signal.
func CreateContentHash(contacts []model.Card) string {
	if len(contacts) == 0 {
		return ""
	}
	n := len(contacts)
	if n > 5 {
		n = 5
	}

	lines := make([]string, 0, n)
	for _, c := range contacts[:n] {
		lines = append(lines, strings.ToLower(c.PrimaryEmail())+"|"+strings.ToLower(strings.TrimSpace(c.ContactName)))
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
