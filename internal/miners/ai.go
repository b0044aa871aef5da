package miners

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"

	"contactminer/internal/aiclient"
	"contactminer/internal/model"
)

const aiSystemPrompt = `You extract exhibitor and contact information from trade show and directory pages.
Read the page content and return ONLY a JSON object of the form:
{"contacts":[{"company":"","contact_name":"","job_title":"","emails":[""],"phone":"","website":"","country":"","city":"","address":""}]}
Omit a field when the page does not contain it. Return an empty "contacts" array when no contact information is present.
Do not invent data that is not present in the page.`

// aiContact mirrors the JSON shape requested in aiSystemPrompt.
type aiContact struct {
	Company     string   `json:"company"`
	ContactName string   `json:"contact_name"`
	JobTitle    string   `json:"job_title"`
	Emails      []string `json:"emails"`
	Phone       string   `json:"phone"`
	Website     string   `json:"website"`
	Country     string   `json:"country"`
	City        string   `json:"city"`
	Address     string   `json:"address"`
}

type aiResponse struct {
	Contacts []aiContact `json:"contacts"`
}

// AIMiner is the last-resort miner: it converts the page to
// markdown and asks a model to extract contacts directly, for pages
// whose structure defeats every deterministic miner.
type AIMiner struct {
	Client    *aiclient.Client
	MaxChars  int
}

// NewAIMiner returns nil when client is nil so callers can skip
// registering this miner when no API key is configured.
func NewAIMiner(client *aiclient.Client) *AIMiner {
	if client == nil {
		return nil
	}
	return &AIMiner{Client: client, MaxChars: 12000}
}

func (m *AIMiner) Name() string { return "ai" }

func (m *AIMiner) Mine(ctx context.Context, job model.Job, in Input) (model.MinerResult, error) {
	start := time.Now()

	if m.Client == nil {
		return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: "ai client not configured"}}, nil
	}
	if strings.TrimSpace(in.PageHTML) == "" {
		return model.MinerResult{Status: model.StatusPartial, Meta: model.MinerMeta{Source: m.Name(), Notes: "no page content"}}, nil
	}

	converter := htmlmd.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(in.PageHTML)
	if err != nil || strings.TrimSpace(markdown) == "" {
		markdown = in.PageHTML
	}
	if m.MaxChars > 0 && len(markdown) > m.MaxChars {
		markdown = markdown[:m.MaxChars]
	}

	raw, err := m.Client.Complete(ctx, aiSystemPrompt, markdown)
	if err != nil {
		if errors.Is(err, aiclient.ErrEmptyResponse) {
			return model.MinerResult{Status: model.StatusPartial, Meta: model.MinerMeta{Source: m.Name(), ExecutionTimeMs: time.Since(start).Milliseconds(), Notes: "empty model response"}}, nil
		}
		return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
	}

	parsed, err := parseAIResponse(raw)
	if err != nil {
		return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
	}

	cards := make([]model.Card, 0, len(parsed.Contacts))
	for _, c := range parsed.Contacts {
		emails := make([]string, 0, len(c.Emails))
		for _, e := range c.Emails {
			if e = strings.TrimSpace(e); e != "" {
				emails = append(emails, e)
			}
		}
		website := c.Website
		if website == "" {
			website = GuessWebsiteFromEmail(emails)
		}
		cards = append(cards, model.Card{
			CompanyName: c.Company,
			ContactName: c.ContactName,
			JobTitle:    c.JobTitle,
			Emails:      emails,
			Phone:       c.Phone,
			Website:     website,
			Country:     c.Country,
			City:        c.City,
			Address:     c.Address,
		})
	}

	status := model.StatusSuccess
	if len(cards) == 0 {
		status = model.StatusPartial
	}

	return model.MinerResult{
		Status:   status,
		Contacts: cards,
		Meta:     model.MinerMeta{Source: m.Name(), ExecutionTimeMs: time.Since(start).Milliseconds()},
	}, nil
}

// parseAIResponse parses the model's JSON object, tolerating text the
// model wraps around it by locating the first/last brace.
func parseAIResponse(content string) (aiResponse, error) {
	var resp aiResponse
	if err := json.Unmarshal([]byte(content), &resp); err == nil {
		return resp, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return aiResponse{}, errors.New("ai miner: no JSON object found in model response")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &resp); err != nil {
		return aiResponse{}, err
	}
	return resp, nil
}
