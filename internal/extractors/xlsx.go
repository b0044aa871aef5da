package extractors

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"contactminer/internal/model"
)

// ExtractXLSX parses every sheet into rows, detects a header row, maps
// columns to semantic fields, and builds one Card per data row that
// has a recoverable email.
func ExtractXLSX(data []byte) ([]model.Card, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cards []model.Card
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		cards = append(cards, cardsFromRows(rows)...)
	}
	return cards, nil
}

// cardsFromRows implements the shared header-detect + column-map + row
// walk used by both XLSX and CSV sheets.
func cardsFromRows(rows [][]string) []model.Card {
	if len(rows) == 0 {
		return nil
	}

	headerIdx := DetectHeaderRow(rows)
	var colMap map[int]SheetField
	dataStart := 0
	if headerIdx >= 0 {
		colMap = BuildColumnMap(rows[headerIdx])
		dataStart = headerIdx + 1
	} else {
		colMap = map[int]SheetField{}
	}

	var cards []model.Card
	for _, row := range rows[dataStart:] {
		fields, emails, ok := RowCard(row, colMap)
		if !ok {
			continue
		}
		card := model.Card{
			CompanyName: fields[FieldCompany],
			ContactName: fields[FieldContactName],
			JobTitle:    fields[FieldTitle],
			Phone:       fields[FieldPhone],
			Website:     fields[FieldWebsite],
			Country:     fields[FieldCountry],
			City:        fields[FieldCity],
			Address:     fields[FieldAddress],
			Emails:      emails,
		}
		cards = append(cards, card)
	}
	return cards
}
