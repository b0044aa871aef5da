package miners

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"contactminer/internal/model"
	"contactminer/internal/pagination"
)

// cardSelectors are the known repeated-card-container selectors tried
// before falling back to repeated-parent detection.
var cardSelectors = []string{
	`[class*="listing-item"]`, `[class*="directory-item"]`, `[class*="business-card"]`,
	`[class*="member-card"]`, `[itemtype*="LocalBusiness"]`,
}

// DirectoryMiner is a two-phase miner: it first locates repeated
// card-like containers on the list page, then follows each card's
// detail URL to enrich email/phone/website/address. It owns its own
// pagination loop.
type DirectoryMiner struct {
	Client    *http.Client
	PageDelay time.Duration
	MaxPages  int
}

func NewDirectoryMiner() *DirectoryMiner {
	// The cookie jar carries the session across login, list pages, and
	// detail fetches for directories that require authentication.
	jar, _ := cookiejar.New(nil)
	return &DirectoryMiner{
		Client:    &http.Client{Timeout: 15 * time.Second, Jar: jar},
		PageDelay: 2 * time.Second,
		MaxPages:  pagination.DefaultMaxPages,
	}
}

func (m *DirectoryMiner) Name() string { return "directory" }

func (m *DirectoryMiner) Mine(ctx context.Context, job model.Job, in Input) (model.MinerResult, error) {
	start := time.Now()

	maxPages := m.MaxPages
	if job.Config.MaxPages > 0 {
		maxPages = job.Config.MaxPages
	}
	delay := m.PageDelay
	if job.Config.ListPageDelayMs > 0 {
		delay = time.Duration(job.Config.ListPageDelayMs) * time.Millisecond
	}

	if job.Config.Login != nil {
		m.login(ctx, job.Config.Login)
	}

	urls, _, _, err := pagination.GeneratePageURLs(in.URL, pagination.GenerateOptions{MaxPages: maxPages, Page1HTML: in.PageHTML}, nil)
	if err != nil {
		return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
	}

	var allCards []model.Card
	emptyStreak := 0
	var lastHash string

	for i, pageURL := range urls {
		select {
		case <-ctx.Done():
			return model.MinerResult{Status: model.StatusPartial, Contacts: allCards, Meta: model.MinerMeta{Source: m.Name(), Notes: "timeout mid-pagination"}}, nil
		default:
		}

		html := ""
		if i == 0 && in.PageHTML != "" {
			html = in.PageHTML
		} else {
			html, _ = m.fetch(ctx, pageURL)
		}

		cards := findDirectoryCards(html, pageURL)
		if len(cards) == 0 {
			emptyStreak++
		} else {
			emptyStreak = 0
		}

		hash := pagination.CreateContentHash(cards)
		if hash == lastHash && hash != "" {
			break
		}
		lastHash = hash

		if !job.Config.SkipDetails {
			for idx := range cards {
				card := &cards[idx]
				if card.PrimaryEmail() != "" {
					continue
				}
				m.enrichFromDetail(ctx, card)
			}
		}

		allCards = append(allCards, cards...)

		if emptyStreak >= 3 {
			break
		}
		if i < len(urls)-1 {
			time.Sleep(delay)
		}
	}

	status := model.StatusSuccess
	if len(allCards) == 0 {
		status = model.StatusPartial
	}

	return model.MinerResult{
		Status:   status,
		Contacts: allCards,
		Meta:     model.MinerMeta{Source: m.Name(), ExecutionTimeMs: time.Since(start).Milliseconds()},
	}, nil
}

// findDirectoryCards implements phase 1: try the known card selectors
// first, then fall back to repeated-parent detection by tag+class
// combined with phone/address hints.
func findDirectoryCards(html, pageURL string) []model.Card {
	if html == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	base, _ := url.Parse(pageURL)

	var cards []model.Card
	for _, sel := range cardSelectors {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		found.Each(func(_ int, s *goquery.Selection) {
			cards = append(cards, cardFromContainer(s, base))
		})
		return cards
	}

	// Repeated-parent fallback: group siblings by tag+class combination,
	// keep groups of size >= 3 that contain phone-or-address-like text.
	groups := make(map[string][]*goquery.Selection)
	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if class == "" {
			return
		}
		key := goquery.NodeName(s) + "." + class
		groups[key] = append(groups[key], s)
	})
	for _, group := range groups {
		if len(group) < 3 {
			continue
		}
		sampleText := group[0].Text()
		if !looksLikeContactBlock(sampleText) {
			continue
		}
		for _, s := range group {
			cards = append(cards, cardFromContainer(s, base))
		}
		break
	}

	return cards
}

func looksLikeContactBlock(text string) bool {
	if phoneDigitsRe.FindAllString(text, -1) == nil {
		return strings.Contains(strings.ToLower(text), "street") || strings.Contains(strings.ToLower(text), "avenue")
	}
	return len(phoneDigitsRe.FindAllString(text, -1)) >= 7
}

func cardFromContainer(s *goquery.Selection, base *url.URL) model.Card {
	text := s.Text()

	// Emails are read from the container's text nodes joined with spaces,
	// so the text of adjacent elements cannot run together into one match.
	var chunks []string
	var collect func(*goquery.Selection)
	collect = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				chunks = append(chunks, c.Text())
			} else {
				collect(c)
			}
		})
	}
	collect(s)
	emails := ExtractEmails(strings.Join(chunks, " "))

	company := strings.TrimSpace(s.Find("h1,h2,h3,[class*=\"name\"],[class*=\"title\"]").First().Text())
	if company == "" {
		company = strings.TrimSpace(firstLine(text))
	}

	var detailURL string
	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if href == "" || base == nil {
			return true
		}
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		detailURL = base.ResolveReference(u).String()
		return false
	})

	phone := ""
	if cleaned, ok := CleanPhone(text); ok {
		phone = cleaned
	}

	card := model.Card{
		CompanyName: company,
		Emails:      emails,
		Phone:       phone,
		Website:     GuessWebsiteFromEmail(emails),
	}
	if card.Raw == nil {
		card.Raw = map[string]any{}
	}
	if detailURL != "" {
		card.Raw["detail_url"] = detailURL
	}
	return card
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return s[:idx]
	}
	if len(s) > 120 {
		return s[:120]
	}
	return s
}

// login posts the job's directory credentials so the session cookie
// lands in the client's jar. A failed login is non-fatal: the miner
// proceeds and simply sees whatever the site serves anonymously.
func (m *DirectoryMiner) login(ctx context.Context, lc *model.LoginConfig) {
	if lc.LoginURL == "" {
		return
	}

	form := url.Values{}
	user := lc.Username
	if user == "" {
		user = lc.Email
	}
	form.Set("username", user)
	if lc.Email != "" {
		form.Set("email", lc.Email)
	}
	form.Set("password", lc.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lc.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", minerUserAgent)

	resp, err := m.Client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (m *DirectoryMiner) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", minerUserAgent)

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// enrichFromDetail is phase 2: follow the card's detail URL (when
// known) and fill in missing email/phone/website/address from the
// detail page: body-text and mailto emails, email/phone/address class
// and tag selectors, schema.org/JSON-LD blocks, and the reverse-text
// obfuscation trick some directories use. Text next to a label (e.g.
// "Email:") is not parsed as such.
func (m *DirectoryMiner) enrichFromDetail(ctx context.Context, card *model.Card) {
	detailURL, _ := card.Raw["detail_url"].(string)
	if detailURL == "" {
		return
	}

	html, err := m.fetch(ctx, detailURL)
	if err != nil {
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}

	if len(card.Emails) == 0 {
		emails := ExtractEmails(html)
		doc.Find(`a[href^="mailto:"]`).Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			emails = append(emails, ExtractEmails(strings.TrimPrefix(href, "mailto:"))...)
		})
		if len(emails) == 0 {
			doc.Find(`[class*="email"], [class*="mail"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if e, ok := deobfuscateReversedEmail(strings.TrimSpace(s.Text())); ok {
					emails = append(emails, e)
					return false
				}
				return true
			})
		}
		card.Emails = dedupLower(emails)
	}

	ld := parseJSONLD(doc)

	if card.Phone == "" {
		if ld.Telephone != "" {
			if cleaned, ok := CleanPhone(ld.Telephone); ok {
				card.Phone = cleaned
			}
		}
		if card.Phone == "" {
			doc.Find(`[href^="tel:"], [class*="phone"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				text := s.Text()
				if href, ok := s.Attr("href"); ok && strings.HasPrefix(href, "tel:") {
					text = strings.TrimPrefix(href, "tel:")
				}
				if cleaned, ok := CleanPhone(text); ok {
					card.Phone = cleaned
					return false
				}
				return true
			})
		}
	}

	if card.Website == "" {
		if ld.URL != "" && !IsBlacklistedWebsite(ld.URL) {
			card.Website = ld.URL
		} else {
			card.Website = GuessWebsiteFromEmail(card.Emails)
		}
	}

	if card.Address == "" {
		if ld.Address != "" {
			card.Address = ld.Address
		} else {
			card.Address = strings.TrimSpace(doc.Find(`address, [class*="address"], [itemprop="address"]`).First().Text())
		}
	}
}

// jsonLD is the subset of a schema.org LocalBusiness/Organization block
// the directory miner reads.
type jsonLD struct {
	Telephone string
	URL       string
	Address   string
}

func parseJSONLD(doc *goquery.Document) jsonLD {
	var out jsonLD
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		if tel, _ := data["telephone"].(string); tel != "" {
			out.Telephone = tel
		}
		if u, _ := data["url"].(string); u != "" {
			out.URL = u
		}
		switch addr := data["address"].(type) {
		case string:
			out.Address = addr
		case map[string]any:
			parts := make([]string, 0, 4)
			for _, k := range []string{"streetAddress", "addressLocality", "postalCode", "addressCountry"} {
				if v, _ := addr[k].(string); v != "" {
					parts = append(parts, v)
				}
			}
			out.Address = strings.Join(parts, ", ")
		}
		return out.Telephone == "" && out.URL == "" && out.Address == ""
	})
	return out
}

// deobfuscateReversedEmail detects a reversed-text trick some
// directories use to defeat naive scraping and un-reverses it when the
// result parses as an email.
func deobfuscateReversedEmail(text string) (string, bool) {
	reversed := reverseString(text)
	if emailRe.MatchString(reversed) {
		return emailRe.FindString(reversed), true
	}
	return "", false
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
