// Package aggregate implements the Aggregation Trigger: it
// turns merged candidates into canonical person/affiliation rows,
// parsing contact names with a priority-context then email-prefix
// fallback, and batches the UPSERTs into transactional groups.
package aggregate

import (
	"regexp"
	"strings"
	"unicode"

	"contactminer/internal/blocklist"
	"contactminer/internal/model"
)

// MaxBatchSize bounds the number of rows written in a single
// transaction.
const MaxBatchSize = 500

var (
	titles = []string{
		"mr", "mrs", "ms", "miss", "mx", "dr", "prof", "professor",
		"sir", "madam", "herr", "frau", "monsieur", "madame", "senor", "senora",
	}
	suffixes = []string{
		"jr", "sr", "ii", "iii", "iv", "v", "phd", "md", "esq", "cpa",
	}

	contextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^([A-Za-z.\-' ]{2,60})\s*\|`),
		regexp.MustCompile(`(?i)^([A-Za-z.\-' ]{2,60})\s*\(`),
		regexp.MustCompile(`(?i)contact\s*:\s*([A-Za-z.\-' ]{2,60})`),
		regexp.MustCompile(`(?i)\b(?:by|from)\s+([A-Za-z.\-' ]{2,60})`),
	}

	wordRe = regexp.MustCompile(`[A-Za-z.'\-]+`)
)

// CanonicalizeEmail is the canonical form used as the person identity
// key: trimmed and lower-cased. Applying it twice yields the same
// string as applying it once.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseName resolves a person's display name from an optional free-text
// context string, falling back to the email local-part when context is
// absent or unusable. It returns ("", false) when neither source
// yields a plausible name (e.g. the email prefix is a generic mailbox).
func ParseName(context, email string, tables blocklist.Tables) (string, bool) {
	if context != "" {
		for _, pat := range contextPatterns {
			m := pat.FindStringSubmatch(context)
			if len(m) < 2 {
				continue
			}
			if name, ok := cleanName(m[1]); ok {
				return name, true
			}
		}
	}

	prefix := email
	if idx := strings.IndexByte(email, '@'); idx >= 0 {
		prefix = email[:idx]
	}
	if prefix == "" || tables.IsGenericPrefix(prefix) {
		return "", false
	}

	sep := "."
	if !strings.Contains(prefix, ".") && strings.Contains(prefix, "_") {
		sep = "_"
	}
	if !strings.Contains(prefix, sep) {
		return "", false
	}
	parts := strings.SplitN(prefix, sep, 2)
	return cleanName(parts[0] + " " + parts[1])
}

// cleanName strips honorific titles and name suffixes, validates each
// remaining token is 2-50 chars with at least one letter and is not
// purely numeric, and title-cases the result.
func cleanName(raw string) (string, bool) {
	words := wordRe.FindAllString(raw, -1)
	if len(words) == 0 {
		return "", false
	}

	var kept []string
	for _, w := range words {
		lower := strings.ToLower(strings.Trim(w, "."))
		if containsFold(titles, lower) || containsFold(suffixes, lower) {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return "", false
	}

	for _, w := range kept {
		if len(w) < 2 || len(w) > 50 {
			return "", false
		}
		if !hasLetter(w) {
			return "", false
		}
		if isNumeric(w) {
			return "", false
		}
	}

	return titleCase(strings.Join(kept, " ")), true
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		r[0] = unicode.ToUpper(r[0])
		for j := 1; j < len(r); j++ {
			r[j] = unicode.ToLower(r[j])
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// splitName breaks a resolved display name into first/last for the
// Person row, putting everything after the first token into LastName.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// PersonUpsert is the resolved key/fill-data for one person UPSERT
// keyed on (organizer_id, lower(email)), filling empty names only.
type PersonUpsert struct {
	OrganizerID string
	Email       string
	FirstName   string
	LastName    string
}

// AffiliationUpsert is the resolved key/fill-data for one affiliation
// row. HasCompany false means the row is inserted with an empty
// company name and never deduplicated.
type AffiliationUpsert struct {
	OrganizerID string
	CompanyName string
	HasCompany  bool
	Position    string
	CountryCode string
	City        string
	Website     string
	Phone       string
	SourceType  model.SourceType
	SourceRef   string
	MiningJobID *string
	Confidence  float64
	Raw         map[string]any
}

// Plan is one candidate resolved into its person and affiliation
// upsert instructions, ready for the store to execute.
type Plan struct {
	Person      PersonUpsert
	Affiliation AffiliationUpsert
}

// BuildPlan resolves a normalized candidate into a Plan. It returns
// (Plan{}, false) when the candidate has no usable email.
func BuildPlan(organizerID string, card model.Card, sourceType model.SourceType, sourceRef string, miningJobID *string, tables blocklist.Tables) (Plan, bool) {
	email := card.PrimaryEmail()
	if email == "" {
		return Plan{}, false
	}

	name := ""
	if card.ContactName != "" {
		name, _ = cleanName(card.ContactName)
	}
	if name == "" {
		context, _ := card.Raw["context"].(string)
		name, _ = ParseName(context, email, tables)
	}
	first, last := splitName(name)

	return Plan{
		Person: PersonUpsert{
			OrganizerID: organizerID,
			Email:       CanonicalizeEmail(email),
			FirstName:   first,
			LastName:    last,
		},
		Affiliation: AffiliationUpsert{
			OrganizerID: organizerID,
			CompanyName: card.CompanyName,
			HasCompany:  card.CompanyName != "",
			Position:    card.JobTitle,
			CountryCode: card.Country,
			City:        card.City,
			Website:     card.Website,
			Phone:       card.Phone,
			SourceType:  sourceType,
			SourceRef:   sourceRef,
			MiningJobID: miningJobID,
			Confidence:  float64(card.Confidence) / 100,
			Raw:         card.Raw,
		},
	}, true
}

// Batches splits plans into groups of at most MaxBatchSize, matching
// the store's one-transaction-per-batch contract.
func Batches(plans []Plan) [][]Plan {
	if len(plans) == 0 {
		return nil
	}
	var batches [][]Plan
	for i := 0; i < len(plans); i += MaxBatchSize {
		end := i + MaxBatchSize
		if end > len(plans) {
			end = len(plans)
		}
		batches = append(batches, plans[i:end])
	}
	return batches
}
