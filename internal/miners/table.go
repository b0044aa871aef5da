package miners

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"contactminer/internal/extractors"
	"contactminer/internal/model"
)

// TableMiner detects <table> elements on the list page, builds a
// column-map from header cells, and dedups rows by email.
type TableMiner struct{}

func NewTableMiner() *TableMiner { return &TableMiner{} }

func (m *TableMiner) Name() string { return "table" }

func (m *TableMiner) Mine(ctx context.Context, job model.Job, in Input) (model.MinerResult, error) {
	start := time.Now()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.PageHTML))
	if err != nil {
		return model.MinerResult{Status: model.StatusError, Meta: model.MinerMeta{Source: m.Name(), Error: err.Error()}}, nil
	}

	seen := make(map[string]bool)
	var cards []model.Card

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var rows [][]string
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		if len(rows) == 0 {
			return
		}

		headerIdx := extractors.DetectHeaderRow(rows)
		colMap := map[int]extractors.SheetField{}
		dataStart := 0
		if headerIdx >= 0 {
			colMap = extractors.BuildColumnMap(rows[headerIdx])
			dataStart = headerIdx + 1
		}

		for _, row := range rows[dataStart:] {
			fields, emails, ok := extractors.RowCard(row, colMap)
			if !ok {
				continue
			}
			for _, email := range emails {
				key := strings.ToLower(email)
				if seen[key] {
					continue
				}
				seen[key] = true
				cards = append(cards, model.Card{
					CompanyName: fields[extractors.FieldCompany],
					ContactName: fields[extractors.FieldContactName],
					JobTitle:    fields[extractors.FieldTitle],
					Phone:       fields[extractors.FieldPhone],
					Website:     fields[extractors.FieldWebsite],
					Country:     fields[extractors.FieldCountry],
					City:        fields[extractors.FieldCity],
					Address:     fields[extractors.FieldAddress],
					Emails:      []string{email},
				})
			}
		}
	})

	status := model.StatusSuccess
	if len(cards) == 0 {
		status = model.StatusPartial
	}

	return model.MinerResult{
		Status:   status,
		Contacts: cards,
		Meta: model.MinerMeta{
			Source:          m.Name(),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		},
	}, nil
}
