package extractors

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"contactminer/internal/model"
)

// PDFMethod names which extraction method produced the
// winning text, recorded in MinerMeta.Notes for observability.
type PDFMethod string

const (
	PDFMethodTable     PDFMethod = "table"
	PDFMethodLayout    PDFMethod = "layout"
	PDFMethodGeneric   PDFMethod = "generic"
	PDFMethodRawScan   PDFMethod = "raw_scan"
)

// PDFResult is the outcome of ExtractPDF: the winning text, the method
// that produced it, and any structured rows the table method recovered.
type PDFResult struct {
	Text     string
	Method   PDFMethod
	Cards    []model.Card // populated only when the table method finds directory-like rows
}

const minUsableTextLen = 50

// ExtractPDF tries each extraction method in order, stopping at the
// first method whose output has usable length >= 50 characters after
// control-byte stripping. Every method is attempted even on error from
// an earlier one: extraction is best-effort, never fatal.
func ExtractPDF(data []byte) (PDFResult, error) {
	tmpFile, cleanup, err := writeTempPDF(data)
	if err != nil {
		return PDFResult{}, err
	}
	defer cleanup()

	if text, cards, ok := extractTableMethod(tmpFile); ok {
		return PDFResult{Text: text, Method: PDFMethodTable, Cards: cards}, nil
	}

	if text, ok := extractLayoutMethod(tmpFile); ok {
		return PDFResult{Text: text, Method: PDFMethodLayout}, nil
	}

	if text, ok := extractGenericMethod(tmpFile); ok {
		return PDFResult{Text: text, Method: PDFMethodGeneric}, nil
	}

	text := extractRawScanMethod(data)
	return PDFResult{Text: text, Method: PDFMethodRawScan}, nil
}

func writeTempPDF(data []byte) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "contactminer-*.pdf")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	f.Close()
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// extractTableMethod uses pdfcpu's content extraction (layout-aware,
// per-page) and then runs the columnar parser over the combined
// text to recover directory-style rows when they look numbered.
func extractTableMethod(path string) (text string, cards []model.Card, ok bool) {
	outDir, err := os.MkdirTemp("", "contactminer-pdf-pages-*")
	if err != nil {
		return "", nil, false
	}
	defer os.RemoveAll(outDir)

	conf := pdfmodel.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return "", nil, false
	}

	entries, err := os.ReadDir(outDir)
	if err != nil || len(entries) == 0 {
		return "", nil, false
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			continue
		}
		buf.Write(content)
		buf.WriteString("\n")
	}

	text = buf.String()
	if usableTextLength(text) < minUsableTextLen {
		return "", nil, false
	}

	cards = parseColumnarDirectory(text)
	return text, cards, true
}

// extractLayoutMethod reads the PDF page by page with ledongthuc/pdf,
// preserving left-to-right row order (columnar layout).
func extractLayoutMethod(path string) (string, bool) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	var buf bytes.Buffer
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
				line.WriteString(" ")
			}
			buf.WriteString(strings.TrimRight(line.String(), " "))
			buf.WriteString("\n")
		}
	}

	text := buf.String()
	return text, usableTextLength(text) >= minUsableTextLen
}

// extractGenericMethod is a plain, unstructured text parse (method 3).
func extractGenericMethod(path string) (string, bool) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	r2, err := r.GetPlainText()
	if err != nil {
		return "", false
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r2); err != nil {
		return "", false
	}

	text := buf.String()
	return text, usableTextLength(text) >= minUsableTextLen
}

var parenStringRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// extractRawScanMethod is the last-resort raw byte scan: extract
// parenthesized strings from BT...ET text objects.
// It never fails — an empty string is a valid, non-fatal outcome that
// the Orchestrator maps to a PARTIAL result with zero cards.
func extractRawScanMethod(data []byte) string {
	content := string(data)
	var buf strings.Builder

	for {
		btIdx := strings.Index(content, "BT")
		if btIdx < 0 {
			break
		}
		etIdx := strings.Index(content[btIdx:], "ET")
		if etIdx < 0 {
			break
		}
		block := content[btIdx : btIdx+etIdx]
		for _, m := range parenStringRe.FindAllStringSubmatch(block, -1) {
			unescaped := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`).Replace(m[1])
			buf.WriteString(unescaped)
			buf.WriteString(" ")
		}
		content = content[btIdx+etIdx+2:]
	}

	return strings.TrimSpace(buf.String())
}

// rowStartRe matches a numbered-row start-of-line marker, e.g. "12  Acme Corp".
var rowStartRe = regexp.MustCompile(`(?m)^\s{0,5}(\d{1,3})\s{1,4}[A-Z]`)

// columnGapRe is the wide whitespace run separating layout columns.
var columnGapRe = regexp.MustCompile(`\s{3,}`)

// parseColumnarDirectory accumulates lines into "entry blocks" for
// text that looks like a numbered directory table: one block per
// numbered row, allowing one continuation line for the company column,
// then extracting emails and a location keyword within the block.
func parseColumnarDirectory(text string) []model.Card {
	lines := strings.Split(text, "\n")

	starts := make([]int, 0)
	for i, line := range lines {
		if rowStartRe.MatchString(line) {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil
	}

	var cards []model.Card
	for idx, start := range starts {
		end := len(lines)
		if idx+1 < len(starts) {
			end = starts[idx+1]
		}
		block := strings.Join(lines[start:end], "\n")

		company := extractCompanyColumn(block)
		emails := extractEmailsFromBlock(block)
		if company == "" && len(emails) == 0 {
			continue
		}

		card := model.Card{
			CompanyName: company,
			Emails:      emails,
		}
		card.Country = guessCountryFromBlock(block)
		cards = append(cards, card)
	}

	return cards
}

func extractCompanyColumn(block string) string {
	lines := strings.Split(block, "\n")
	if len(lines) == 0 {
		return ""
	}

	// The row marker match ends on the company's first capital letter,
	// so the company column starts one byte before the match end. The
	// column ends at the next wide whitespace gap.
	first := lines[0]
	if loc := rowStartRe.FindStringIndex(first); loc != nil {
		first = first[loc[1]-1:]
	}
	if gap := columnGapRe.FindStringIndex(first); gap != nil {
		first = first[:gap[0]]
	}
	first = strings.TrimSpace(first)

	// Allow one continuation line: an indented follow-up with no email
	// extends a company name the column layout wrapped.
	if len(lines) > 1 {
		next := lines[1]
		if strings.HasPrefix(next, "    ") && !emailRe.MatchString(next) {
			if cont := strings.TrimSpace(next); cont != "" {
				first = strings.TrimSpace(first + " " + cont)
			}
		}
	}
	return first
}

func extractEmailsFromBlock(block string) []string {
	return emailRe.FindAllString(block, -1)
}

func guessCountryFromBlock(block string) string {
	lower := strings.ToLower(block)
	for kw := range countryLexicon {
		if strings.Contains(lower, kw) {
			return countryLexicon[kw]
		}
	}
	return ""
}

// countryLexicon is a small country/region lexicon used only by the
// PDF columnar parser's location guess; the full keyword map
// used elsewhere lives in internal/blocklist.
var countryLexicon = map[string]string{
	"usa": "US", "united states": "US", "germany": "DE", "france": "FR",
	"italy": "IT", "spain": "ES", "china": "CN", "japan": "JP",
	"india": "IN", "uk": "GB", "united kingdom": "GB", "canada": "CA",
}
