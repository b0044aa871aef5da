package miners

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"contactminer/internal/model"
)

// pageState is one step of the per-page state machine:
// NAVIGATE -> SCROLL/LAZY_LOAD -> STABILIZE -> EXTRACT -> DECIDE.
type pageState int

const (
	stateNavigate pageState = iota
	stateScroll
	stateStabilize
	stateExtract
	stateDecide
)

// BrowserMiner launches a headless browser per Mine call, scrolls to
// trigger lazy load on the one list page at in.URL, and visits each
// detail link found there for structured extraction. It does not
// enumerate further list pages itself; in full mode the Orchestrator's
// paginated loop calls it once per page.
type BrowserMiner struct {
	Timeout        time.Duration
	Headless       bool
	NoSandbox      bool
	DetailDelay    time.Duration
	MaxDetailLinks int
}

func NewBrowserMiner(timeout time.Duration) *BrowserMiner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserMiner{
		Timeout:        timeout,
		Headless:       true,
		NoSandbox:      true,
		DetailDelay:    800 * time.Millisecond,
		MaxDetailLinks: 300,
	}
}

func (m *BrowserMiner) Name() string { return "browser_list_detail" }

func (m *BrowserMiner) Mine(ctx context.Context, job model.Job, in Input) (model.MinerResult, error) {
	start := time.Now()

	if job.Config.MaxDetails > 0 {
		m.MaxDetailLinks = job.Config.MaxDetails
	}
	if job.Config.DetailDelayMs > 0 {
		m.DetailDelay = time.Duration(job.Config.DetailDelayMs) * time.Millisecond
	}

	browser, cleanup, err := launchBrowser(ctx, m.Timeout, m.Headless, m.NoSandbox)
	if err != nil {
		return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
	}
	defer cleanup()

	html, blocked, err := runPageStateMachine(browser, in.URL)
	if err != nil {
		return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
	}
	if blocked {
		return model.MinerResult{}, ErrBlockDetected
	}

	base, _ := url.Parse(in.URL)
	detailLinks := extractDetailLinks(html, base, job.Config.DetailURLPattern)
	if len(detailLinks) > m.MaxDetailLinks {
		detailLinks = detailLinks[:m.MaxDetailLinks]
	}

	var cards []model.Card
	var extracted []string
	for _, link := range detailLinks {
		select {
		case <-ctx.Done():
			return model.MinerResult{
				Status:   model.StatusPartial,
				Contacts: cards,
				Meta:     model.MinerMeta{Source: m.Name(), ExecutionTimeMs: time.Since(start).Milliseconds(), Notes: "timeout: partial detail crawl"},
			}, nil
		default:
		}

		detailHTML, blockedDetail, err := runPageStateMachine(browser, link)
		if err != nil {
			continue
		}
		if blockedDetail {
			return model.MinerResult{}, ErrBlockDetected
		}

		card := extractDetailCard(detailHTML, link)
		if card.PrimaryEmail() != "" || card.CompanyName != "" {
			cards = append(cards, card)
			extracted = append(extracted, link)
		}

		time.Sleep(m.DetailDelay)
	}

	status := model.StatusSuccess
	if len(cards) == 0 {
		status = model.StatusPartial
	}

	return model.MinerResult{
		Status:         status,
		Contacts:       cards,
		ExtractedLinks: extracted,
		Meta:           model.MinerMeta{Source: m.Name(), ExecutionTimeMs: time.Since(start).Milliseconds()},
	}, nil
}

// launchBrowser starts a local headless Chromium instance and returns
// a cleanup func covering every exit path.
func launchBrowser(ctx context.Context, timeout time.Duration, headless, noSandbox bool) (*rod.Browser, func(), error) {
	l := launcher.New()
	if path, has := launcher.LookPath(); has {
		l = l.Bin(path)
	}
	l = l.Headless(headless).NoSandbox(noSandbox)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, func() {}, err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx).Timeout(timeout)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, func() {}, err
	}

	cleanup := func() {
		_ = browser.Close()
		l.Kill()
	}
	return browser, cleanup, nil
}

// blockMarkers are substrings that, alongside HTTP status and anchor
// count, signal an automated-access refusal.
var blockMarkers = []string{
	"checking your browser", "verify you are human", "cf-browser-verification",
	"attention required! | cloudflare", "please complete the security check",
	"captcha",
}

// runPageStateMachine drives one page through NAVIGATE -> SCROLL ->
// STABILIZE -> EXTRACT -> DECIDE and returns the final HTML plus a
// block verdict.
func runPageStateMachine(browser *rod.Browser, targetURL string) (html string, blocked bool, err error) {
	page, err := browser.Page(proto.TargetCreateTarget{URL: targetURL})
	if err != nil {
		return "", false, err
	}
	defer func() { _ = page.Close() }()

	state := stateNavigate
	for {
		switch state {
		case stateNavigate:
			if err := page.WaitLoad(); err != nil {
				return "", false, err
			}
			state = stateScroll
		case stateScroll:
			_ = page.Mouse.Scroll(0, 3000, 1)
			state = stateStabilize
		case stateStabilize:
			page.Timeout(2 * time.Second).WaitStable(500 * time.Millisecond)
			state = stateExtract
		case stateExtract:
			html, err = page.HTML()
			if err != nil {
				return "", false, err
			}
			state = stateDecide
		case stateDecide:
			return html, detectBlock(html), nil
		}
	}
}

// detectBlock applies the block heuristics this miner checks on every
// page: Cloudflare/CAPTCHA markers, "verify you are human" text, or an
// anchor count below 3.
func detectBlock(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find("a").Length() < 3
}

var detailTokenDefault = []string{"exhibitor", "company", "profile", "member", "vendor", "supplier"}

// extractDetailLinks finds same-host anchors matching either a custom
// detail_url_pattern substring or the generic detail-token
// heuristic, deduped.
func extractDetailLinks(html string, base *url.URL, pattern string) []string {
	if base == nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
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

		matches := false
		if pattern != "" {
			matches = strings.Contains(abs.String(), pattern)
		} else {
			low := strings.ToLower(abs.String())
			for _, tok := range detailTokenDefault {
				if strings.Contains(low, tok) {
					matches = true
					break
				}
			}
		}
		if !matches || seen[abs.String()] {
			return
		}
		seen[abs.String()] = true
		links = append(links, abs.String())
	})
	return links
}

// extractDetailCard pulls company/contact/phone/country/website out of
// one detail page: company via h1/labeled classes, website by
// rel=external + label match + email-domain guess, phone by regex,
// country as the raw text of the first non-empty [class*="country"]
// element (no keyword-table lookup is done here).
func extractDetailCard(html, sourceURL string) model.Card {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.Card{}
	}

	company := strings.TrimSpace(doc.Find("h1").First().Text())
	if company == "" {
		company = strings.TrimSpace(doc.Find(`[class*="company-name"], [class*="companyName"], [class*="org-name"]`).First().Text())
	}

	contact := strings.TrimSpace(doc.Find(`[class*="contact-name"], [class*="person-name"]`).First().Text())

	emails := ExtractEmails(html)

	website := ""
	doc.Find(`a[rel="external"], a[class*="website"], a[class*="external"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if href, ok := s.Attr("href"); ok && strings.HasPrefix(href, "http") && !IsBlacklistedWebsite(href) {
			website = href
			return false
		}
		return true
	})
	if website == "" {
		website = GuessWebsiteFromEmail(emails)
	}

	phone := ""
	doc.Find(`[class*="phone"], [href^="tel:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if href, ok := s.Attr("href"); ok && strings.HasPrefix(href, "tel:") {
			text = strings.TrimPrefix(href, "tel:")
		}
		if cleaned, ok := CleanPhone(text); ok {
			phone = cleaned
			return false
		}
		return true
	})

	country := ""
	doc.Find(`[class*="country"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		country = strings.TrimSpace(s.Text())
		return country == ""
	})

	return model.Card{
		CompanyName: company,
		ContactName: contact,
		Emails:      emails,
		Website:     website,
		Phone:       phone,
		Country:     country,
	}
}
