package miners

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"contactminer/internal/model"
)

// VendorCatalogMiner is a site-specific miner: rather
// than encode per-vendor scraping logic, it observes the internal JSON
// search API a catalog page calls while navigating, then replays that
// API directly for subsequent pages instead of driving the browser
// again ("observe -> replay").
type VendorCatalogMiner struct {
	Timeout    time.Duration
	Headless   bool
	NoSandbox  bool
	HTTPClient *http.Client
	MaxPages   int
}

func NewVendorCatalogMiner(timeout time.Duration) *VendorCatalogMiner {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &VendorCatalogMiner{
		Timeout:    timeout,
		Headless:   true,
		NoSandbox:  true,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		MaxPages:   20,
	}
}

func (m *VendorCatalogMiner) Name() string { return "vendor_catalog" }

// apiCall is one sniffed JSON API request made while the page loaded.
type apiCall struct {
	url  string
	body []byte
}

// pageTokenRe finds a numeric query parameter that looks like a page
// index (page=, pg=, p=, offset=) so the replay step can vary it.
var pageTokenRe = regexp.MustCompile(`(?i)([?&](?:page|pg|p|offset)=)(\d+)`)

func (m *VendorCatalogMiner) Mine(ctx context.Context, job model.Job, in Input) (model.MinerResult, error) {
	start := time.Now()
	maxPages := m.MaxPages
	if job.Config.MaxPages > 0 {
		maxPages = job.Config.MaxPages
	}
	if maxPages > 50 {
		maxPages = 50
	}

	browser, cleanup, err := launchBrowser(ctx, m.Timeout, m.Headless, m.NoSandbox)
	if err != nil {
		return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
	}
	defer cleanup()

	call, err := m.observe(browser, in.URL)
	if err != nil {
		return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
	}
	if call == nil {
		return model.MinerResult{Status: model.StatusPartial, Meta: model.MinerMeta{Source: m.Name(), Notes: "no internal JSON API observed"}}, nil
	}

	var allCards []model.Card
	seen := make(map[string]bool)
	pageCall := *call

	for page := 1; page <= maxPages; page++ {
		select {
		case <-ctx.Done():
			return model.MinerResult{Status: model.StatusPartial, Contacts: allCards, Meta: model.MinerMeta{Source: m.Name(), Notes: "timeout mid-replay"}}, nil
		default:
		}

		var body []byte
		if page == 1 {
			body = pageCall.body
		} else {
			replayURL, ok := withPageToken(pageCall.url, page, job.Config.PageSize)
			if !ok {
				break
			}
			body, err = m.replay(ctx, replayURL)
			if err != nil {
				break
			}
		}

		cards := cardsFromAPIBody(body)
		if len(cards) == 0 {
			break
		}

		added := 0
		for _, c := range cards {
			key := strings.ToLower(c.PrimaryEmail())
			if key == "" {
				key = strings.ToLower(c.CompanyName)
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			allCards = append(allCards, c)
			added++
		}
		if added == 0 {
			break
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

// observe navigates the page once, listening for JSON XHR/fetch
// responses, and returns the first one whose body parses as a list of
// record-like objects.
func (m *VendorCatalogMiner) observe(browser *rod.Browser, targetURL string) (*apiCall, error) {
	page, err := browser.Page(proto.TargetCreateTarget{URL: targetURL})
	if err != nil {
		return nil, err
	}
	defer func() { _ = page.Close() }()

	router := page.HijackRequests()
	defer func() { _ = router.Stop() }()

	var found *apiCall
	router.MustAdd("*", func(h *rod.Hijack) {
		h.MustLoadResponse()
		if found == nil && looksLikeJSONAPI(h) {
			body := []byte(h.Response.Body())
			if cardsFromAPIBody(body) != nil {
				found = &apiCall{url: h.Request.URL().String(), body: body}
			}
		}
	})
	go router.Run()

	if err := page.WaitLoad(); err != nil {
		return nil, err
	}
	page.Timeout(3 * time.Second).WaitStable(500 * time.Millisecond)

	return found, nil
}

func looksLikeJSONAPI(h *rod.Hijack) bool {
	ct := h.Response.Headers().Get("Content-Type")
	return strings.Contains(strings.ToLower(ct), "json")
}

// replay re-issues a sniffed API URL directly via plain HTTP, avoiding
// a second full browser navigation.
func (m *VendorCatalogMiner) replay(ctx context.Context, apiURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	buf := make([]byte, 0, 64*1024)
	tmp := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if rerr != nil {
			break
		}
		if len(buf) > 5<<20 {
			break
		}
	}
	return buf, nil
}

// withPageToken rewrites the sniffed URL's page-index parameter for
// page N. Offset-style parameters advance by pageSize per page rather
// than by one.
func withPageToken(apiURL string, page, pageSize int) (string, bool) {
	loc := pageTokenRe.FindStringSubmatchIndex(apiURL)
	if loc == nil {
		return "", false
	}
	prefix := apiURL[loc[2]:loc[3]]
	val := page
	if strings.Contains(strings.ToLower(prefix), "offset") {
		if pageSize <= 0 {
			pageSize = 24
		}
		val = (page - 1) * pageSize
	}
	return apiURL[:loc[2]] + prefix + strconv.Itoa(val) + apiURL[loc[1]:], true
}

// cardsFromAPIBody tries a handful of common response shapes
// (top-level array, or {data:[...]}/{results:[...]}/{items:[...]})
// and maps record fields by common key names.
func cardsFromAPIBody(body []byte) []model.Card {
	var records []map[string]any

	var asArray []map[string]any
	if json.Unmarshal(body, &asArray) == nil && len(asArray) > 0 {
		records = asArray
	} else {
		var wrapper map[string]any
		if json.Unmarshal(body, &wrapper) != nil {
			return nil
		}
		for _, key := range []string{"data", "results", "items", "exhibitors", "records"} {
			if list, ok := wrapper[key].([]any); ok {
				for _, item := range list {
					if m, ok := item.(map[string]any); ok {
						records = append(records, m)
					}
				}
				break
			}
		}
	}
	if len(records) == 0 {
		return nil
	}

	cards := make([]model.Card, 0, len(records))
	for _, rec := range records {
		card := model.Card{
			CompanyName: strField(rec, "company", "companyName", "name", "title"),
			ContactName: strField(rec, "contact", "contactName", "person"),
			Phone:       strField(rec, "phone", "phoneNumber", "tel"),
			Website:     strField(rec, "website", "url", "siteUrl"),
			Country:     strField(rec, "country", "countryName"),
			City:        strField(rec, "city"),
			Address:     strField(rec, "address", "fullAddress"),
		}
		if email := strField(rec, "email", "contactEmail", "emailAddress"); email != "" {
			card.Emails = []string{email}
		}
		if card.CompanyName == "" && card.PrimaryEmail() == "" {
			continue
		}
		cards = append(cards, card)
	}
	return cards
}

func strField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
