package miners

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"contactminer/internal/extractors"
	"contactminer/internal/model"
)

// DocumentMiner handles document-viewer pages (flipbooks, embedded PDF
// viewers): direct PDF URLs are downloaded and delegated to the PDF
// extractor; otherwise it tries, in order, the SEO text layer, a JSON
// text API, and the embedded page body text.
type DocumentMiner struct {
	Client *http.Client
}

func NewDocumentMiner(timeout time.Duration) *DocumentMiner {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &DocumentMiner{Client: &http.Client{Timeout: timeout}}
}

func (m *DocumentMiner) Name() string { return "document" }

func (m *DocumentMiner) Mine(ctx context.Context, job model.Job, in Input) (model.MinerResult, error) {
	start := time.Now()

	if strings.HasSuffix(strings.ToLower(strings.SplitN(in.URL, "?", 2)[0]), ".pdf") {
		data, err := m.download(ctx, in.URL)
		if err != nil {
			return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
		}
		result, err := extractors.ExtractPDF(data)
		if err != nil {
			return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
		}
		return m.fromExtractedText(result.Text, result.Cards, string(result.Method), start), nil
	}

	html := in.PageHTML
	if html == "" {
		var err error
		html, err = m.fetchHTML(ctx, in.URL)
		if err != nil {
			return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
		}
	}

	if text, ok := seoTextLayer(html); ok {
		return m.fromExtractedText(text, nil, "seo_text_layer", start), nil
	}

	if text, ok := jsonTextAPI(ctx, m.Client, html); ok {
		return m.fromExtractedText(text, nil, "json_text_api", start), nil
	}

	text := embeddedBodyText(html)
	return m.fromExtractedText(text, nil, "embedded_body_text", start), nil
}

func (m *DocumentMiner) fromExtractedText(text string, structuredCards []model.Card, method string, start time.Time) model.MinerResult {
	cards := structuredCards
	if len(cards) == 0 {
		if emails := ExtractEmails(text); len(emails) > 0 {
			for _, e := range emails {
				cards = append(cards, model.Card{Emails: []string{e}, Website: GuessWebsiteFromEmail([]string{e})})
			}
		}
	}

	status := model.StatusSuccess
	if len(cards) == 0 {
		status = model.StatusPartial
	}

	return model.MinerResult{
		Status:   status,
		Contacts: cards,
		Meta:     model.MinerMeta{Source: m.Name(), ExecutionTimeMs: time.Since(start).Milliseconds(), Notes: method},
	}
}

func (m *DocumentMiner) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 50<<20))
}

func (m *DocumentMiner) fetchHTML(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// seoTextLayer extracts the hidden/offscreen text layer flipbook
// viewers render for SEO purposes.
func seoTextLayer(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	sel := doc.Find(`[class*="seo-text"], [class*="seoText"], [id^="p:"]`)
	if sel.Length() == 0 {
		return "", false
	}
	var sb strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(s.Text())
		sb.WriteString("\n")
	})
	text := sb.String()
	return text, strings.TrimSpace(text) != ""
}

var viewerAPIRe = regexp.MustCompile(`["'](https?://[^"']+/api/[^"']*(?:page|text|content)[^"']*)["']`)

// jsonTextAPI looks for the viewer's internal page-text JSON endpoint
// referenced in the HTML and, when one exists, fetches it and
// concatenates every string value in the payload.
func jsonTextAPI(ctx context.Context, client *http.Client, html string) (string, bool) {
	m := viewerAPIRe.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m[1], nil)
	if err != nil {
		return "", false
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", false
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}

	var sb strings.Builder
	collectJSONStrings(payload, &sb)
	text := sb.String()
	return text, strings.TrimSpace(text) != ""
}

func collectJSONStrings(v any, sb *strings.Builder) {
	switch t := v.(type) {
	case string:
		sb.WriteString(t)
		sb.WriteString("\n")
	case []any:
		for _, item := range t {
			collectJSONStrings(item, sb)
		}
	case map[string]any:
		for _, item := range t {
			collectJSONStrings(item, sb)
		}
	}
}

// embeddedBodyText is the last fallback: the page converted to
// markdown (stripping tags, keeping text), or plain body text when
// conversion fails.
func embeddedBodyText(html string) string {
	converter := htmlmd.NewConverter("", true, nil)
	if md, err := converter.ConvertString(html); err == nil && strings.TrimSpace(md) != "" {
		return md
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return doc.Find("body").Text()
}
