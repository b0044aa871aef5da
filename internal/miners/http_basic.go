package miners

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	robotstxt "github.com/temoto/robotstxt"

	"contactminer/internal/model"
)

// maxDetailFollows caps how many same-host detail-looking links the
// HTTP Basic miner will follow from the root page.
const maxDetailFollows = 40

const minerUserAgent = "Mozilla/5.0 (compatible; ContactMinerBot/1.0)"

var detailHrefTokenRe = func() func(string) bool {
	tokens := []string{"exhibitor", "company", "profile", "member"}
	return func(href string) bool {
		low := strings.ToLower(href)
		for _, t := range tokens {
			if strings.Contains(low, t) {
				return true
			}
		}
		return false
	}
}()

// HTTPBasicMiner GETs the root page, regex-extracts emails from body
// text and href attributes, follows a short whitelist of same-host
// detail-looking URLs, and aggregates the result.
type HTTPBasicMiner struct {
	Client *http.Client
}

// NewHTTPBasicMiner constructs an HTTPBasicMiner with the given timeout.
func NewHTTPBasicMiner(timeout time.Duration) *HTTPBasicMiner {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPBasicMiner{Client: &http.Client{Timeout: timeout}}
}

func (m *HTTPBasicMiner) Name() string { return "http_basic" }

func (m *HTTPBasicMiner) Mine(ctx context.Context, job model.Job, in Input) (model.MinerResult, error) {
	start := time.Now()

	base, err := url.Parse(in.URL)
	if err != nil {
		return model.MinerResult{Status: model.StatusError, Meta: m.meta(start, "", err)}, nil
	}

	html := in.PageHTML
	var httpCode int
	if html == "" {
		var fetchErr error
		html, httpCode, fetchErr = m.fetch(ctx, in.URL)
		if fetchErr != nil {
			return model.MinerResult{Status: model.StatusError, HTTPCode: &httpCode, Meta: m.meta(start, "", fetchErr)}, nil
		}
		if httpCode == 401 || httpCode == 403 || httpCode == 429 {
			return model.MinerResult{Status: model.StatusBlockedResult, HTTPCode: &httpCode, Meta: m.meta(start, "blocked status code", nil)}, nil
		}
	}

	emails := ExtractEmails(html)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.MinerResult{Status: model.StatusError, Meta: m.meta(start, "", err)}, nil
	}

	robotsData, _ := m.fetchRobots(ctx, base)

	var detailLinks []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if len(detailLinks) >= maxDetailFollows {
			return
		}
		href, _ := s.Attr("href")
		if !detailHrefTokenRe(href) {
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
		if robotsData != nil && !robotsData.FindGroup(minerUserAgent).Test(abs.Path) {
			return
		}
		detailLinks = append(detailLinks, abs.String())
	})

	for _, link := range detailLinks {
		select {
		case <-ctx.Done():
			break
		default:
		}
		detailHTML, _, err := m.fetch(ctx, link)
		if err != nil {
			continue
		}
		emails = append(emails, ExtractEmails(detailHTML)...)
	}

	emails = dedupLower(emails)

	cards := cardsFromEmails(emails, base.String())

	status := model.StatusSuccess
	if len(cards) == 0 {
		// Zero contacts is PARTIAL, not SUCCESS, under the
		// unified-engine semantics.
		status = model.StatusPartial
	}

	return model.MinerResult{
		Status:         status,
		Emails:         emails,
		Contacts:       cards,
		ExtractedLinks: detailLinks,
		HTTPCode:       &httpCode,
		Meta:           m.meta(start, "", nil),
	}, nil
}

func (m *HTTPBasicMiner) fetch(ctx context.Context, target string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", minerUserAgent)

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(body), resp.StatusCode, nil
}

// fetchRobots loads and parses the host's robots.txt so detail-link
// follows can honor disallow rules. A fetch failure is non-fatal; the
// miner proceeds without robots data.
func (m *HTTPBasicMiner) fetchRobots(ctx context.Context, base *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", minerUserAgent)

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}

func (m *HTTPBasicMiner) meta(start time.Time, notes string, err error) model.MinerMeta {
	meta := model.MinerMeta{
		Source:          m.Name(),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Notes:           notes,
	}
	if err != nil {
		meta.Error = err.Error()
	}
	return meta
}

func dedupLower(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		low := strings.ToLower(s)
		if seen[low] {
			continue
		}
		seen[low] = true
		out = append(out, low)
	}
	return out
}

// cardsFromEmails builds a bare Card per email when a miner has no
// richer per-contact structure available (HTTP Basic's output is
// email-only).
func cardsFromEmails(emails []string, sourceURL string) []model.Card {
	cards := make([]model.Card, 0, len(emails))
	for _, e := range emails {
		website := GuessWebsiteFromEmail([]string{e})
		cards = append(cards, model.Card{
			Emails:  []string{e},
			Website: website,
		})
	}
	return cards
}
