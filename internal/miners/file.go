package miners

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"contactminer/internal/extractors"
	"contactminer/internal/model"
)

// FileMiner dispatches to the multi-method PDF/Office extractor chain
// based on file extension and builds cards from the result.
type FileMiner struct{}

func NewFileMiner() *FileMiner { return &FileMiner{} }

func (m *FileMiner) Name() string { return "file" }

func (m *FileMiner) Mine(ctx context.Context, job model.Job, in Input) (model.MinerResult, error) {
	start := time.Now()

	ext := strings.ToLower(filepath.Ext(in.FileName))
	if ext == "" {
		ext = extensionFromJobType(job.Type)
	}

	var cards []model.Card
	var notes string

	switch ext {
	case ".pdf":
		result, err := extractors.ExtractPDF(in.FileBytes)
		if err != nil {
			return m.errResult(err, start), nil
		}
		notes = "pdf:" + string(result.Method)
		if len(result.Cards) > 0 {
			cards = result.Cards
		} else {
			cards = cardsFromPlainText(result.Text)
		}

	case ".docx", ".doc":
		result, err := extractors.ExtractDOCX(in.FileBytes)
		if err != nil {
			return m.errResult(err, start), nil
		}
		notes = "docx:" + string(result.Method)
		cards = cardsFromPlainText(result.Text)

	case ".xlsx", ".xls":
		var err error
		cards, err = extractors.ExtractXLSX(in.FileBytes)
		if err != nil {
			return m.errResult(err, start), nil
		}
		notes = "xlsx"

	case ".csv":
		var err error
		cards, err = extractors.ExtractCSV(in.FileBytes)
		if err != nil {
			return m.errResult(err, start), nil
		}
		notes = "csv"

	default:
		cards = cardsFromPlainText(string(in.FileBytes))
		notes = "unstructured_regex"
	}

	status := model.StatusSuccess
	if len(cards) == 0 {
		status = model.StatusPartial
	}

	return model.MinerResult{
		Status:   status,
		Contacts: cards,
		Meta:     model.MinerMeta{Source: m.Name(), ExecutionTimeMs: time.Since(start).Milliseconds(), Notes: notes},
	}, nil
}

func (m *FileMiner) errResult(err error, start time.Time) model.MinerResult {
	return model.MinerResult{
		Status: model.StatusError,
		Meta:   model.MinerMeta{Source: m.Name(), ExecutionTimeMs: time.Since(start).Milliseconds(), Error: err.Error()},
	}
}

func extensionFromJobType(t model.JobType) string {
	switch t {
	case model.JobTypePDF:
		return ".pdf"
	case model.JobTypeExcel:
		return ".xlsx"
	case model.JobTypeWord:
		return ".docx"
	case model.JobTypeCSV:
		return ".csv"
	default:
		return ""
	}
}

// cardsFromPlainText is the unstructured-regex fallback: one card per
// email found in free text, enriched with a best-effort website guess.
func cardsFromPlainText(text string) []model.Card {
	emails := ExtractEmails(text)
	cards := make([]model.Card, 0, len(emails))
	for _, e := range emails {
		cards = append(cards, model.Card{
			Emails:  []string{e},
			Website: GuessWebsiteFromEmail([]string{e}),
		})
	}
	return cards
}
