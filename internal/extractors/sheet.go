package extractors

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// SheetField is a semantic column the row mapper recognizes.
type SheetField string

const (
	FieldEmail       SheetField = "email"
	FieldCompany     SheetField = "company"
	FieldPhone       SheetField = "phone"
	FieldCountry     SheetField = "country"
	FieldCity        SheetField = "city"
	FieldWebsite     SheetField = "website"
	FieldTitle       SheetField = "title"
	FieldAddress     SheetField = "address"
	FieldContactName SheetField = "name"
	FieldSource      SheetField = "source"
)

// headerKeywords maps each semantic field to the header-text keywords
// that identify it. Order in fieldOrder matters: "source" MUST be
// matched before "name" so that "Lead Source" does not collide with
// the contact-name column.
var headerKeywords = map[SheetField][]string{
	FieldSource:      {"source", "kaynak", "lead source"},
	FieldEmail:       {"email", "e-mail", "mail"},
	FieldCompany:     {"company", "firm", "organization", "organisation"},
	FieldPhone:       {"phone", "tel", "mobile", "cell", "fax"},
	FieldCountry:     {"country"},
	FieldCity:        {"city"},
	FieldWebsite:     {"website", "web site", "url"},
	FieldTitle:       {"title", "position", "job title"},
	FieldAddress:     {"address"},
	FieldContactName: {"name", "contact"},
}

// fieldOrder is the precedence order header matching walks in, so that
// "source" binds before the more general "name" keyword set.
var fieldOrder = []SheetField{
	FieldSource, FieldEmail, FieldCompany, FieldPhone, FieldCountry,
	FieldCity, FieldWebsite, FieldTitle, FieldAddress, FieldContactName,
}

// DetectHeaderRow scans the first up-to-5 rows for one containing any
// of the fixed keyword list and returns its index, or -1 if none
// qualifies.
func DetectHeaderRow(rows [][]string) int {
	limit := 5
	if len(rows) < limit {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		for _, cell := range rows[i] {
			if matchField(cell) != "" {
				return i
			}
		}
	}
	return -1
}

// BuildColumnMap maps each column index in header to the semantic
// field it represents, honoring the fieldOrder precedence so that
// "source"-like headers never get claimed by the "name" keyword set.
func BuildColumnMap(header []string) map[int]SheetField {
	colMap := make(map[int]SheetField)
	for i, cell := range header {
		if f := matchField(cell); f != "" {
			colMap[i] = f
		}
	}
	return colMap
}

func matchField(header string) SheetField {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == "" {
		return ""
	}
	for _, field := range fieldOrder {
		for _, kw := range headerKeywords[field] {
			if strings.Contains(h, kw) {
				return field
			}
		}
	}
	return ""
}

// RowCard builds a Card from one data row using the column map; it
// returns ok=false when no email can be recovered, either from the
// mapped email column or by scanning every cell (the headerless-CSV
// fallback).
func RowCard(row []string, colMap map[int]SheetField) (cardFields map[SheetField]string, emails []string, ok bool) {
	cardFields = make(map[SheetField]string)
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if field, mapped := colMap[i]; mapped {
			if field == FieldEmail {
				emails = append(emails, emailRe.FindAllString(cell, -1)...)
				continue
			}
			if existing, has := cardFields[field]; !has || existing == "" {
				cardFields[field] = cell
			}
		}
	}

	if len(emails) == 0 {
		// Headerless / unmapped fallback: scan every cell for an email.
		for _, cell := range row {
			emails = append(emails, emailRe.FindAllString(cell, -1)...)
		}
	}

	return cardFields, dedupStrings(emails), len(emails) > 0
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		low := strings.ToLower(s)
		if seen[low] {
			continue
		}
		seen[low] = true
		out = append(out, s)
	}
	return out
}
