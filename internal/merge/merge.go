// Package merge implements the Result Normalizer + Merger: it
// turns raw per-miner cards into canonical candidates and merges them
// across miners and pages by email, filling missing fields without
// ever overwriting a field already populated.
package merge

import (
	"regexp"
	"sort"
	"strings"

	"contactminer/internal/blocklist"
	"contactminer/internal/model"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	pipeGarbageRe = regexp.MustCompile(`\s*\|\s*`)
	emailLikeRe   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Normalize brings a raw Card to canonical shape: lower-cases
// and dedups emails keeping one primary, trims/collapses whitespace,
// maps country names to ISO alpha-2, and strips pipe-separated noise
// out of free-text fields.
func Normalize(card model.Card, tables blocklist.Tables) model.Card {
	card.CompanyName = cleanSegment(card.CompanyName)
	card.ContactName = cleanSegment(card.ContactName)
	card.JobTitle = collapse(card.JobTitle)
	card.Phone = collapse(card.Phone)
	card.City = collapse(card.City)
	card.Address = collapse(card.Address)
	card.Website = strings.TrimSpace(card.Website)

	card.Emails = normalizeEmails(card.Emails)

	if card.Country != "" {
		if code, ok := tables.CountryCode(card.Country); ok {
			card.Country = code
		} else {
			card.Country = collapse(card.Country)
		}
	}

	return card
}

func normalizeEmails(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// collapse trims a string and collapses internal whitespace runs.
func collapse(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return whitespaceRe.ReplaceAllString(s, " ")
}

// cleanSegment applies collapse, then the pipe-garbage rule:
// keep only the first plausible segment of a "|"-joined string,
// dropping segments that parse as an email.
func cleanSegment(s string) string {
	s = collapse(s)
	if s == "" || !strings.Contains(s, "|") {
		return s
	}
	for _, seg := range pipeGarbageRe.Split(s, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" || emailLikeRe.MatchString(seg) {
			continue
		}
		return seg
	}
	return ""
}

// Score computes the 0-100 confidence score for a normalized card.
func Score(card model.Card, tables blocklist.Tables) int {
	score := 0
	if email := card.PrimaryEmail(); email != "" {
		score += 30
		prefix := email
		if idx := strings.IndexByte(email, '@'); idx >= 0 {
			prefix = email[:idx]
		}
		if !tables.IsGenericPrefix(prefix) {
			score += 15
		}
	}
	if len(strings.TrimSpace(card.ContactName)) >= 3 {
		score += 20
	}
	if card.CompanyName != "" {
		score += 15
	}
	if card.Phone != "" {
		score += 15
	}
	if card.Country != "" {
		score += 5
	}
	if card.Website != "" {
		score += 5
	}
	if card.JobTitle != "" {
		score += 5
	}
	if card.City != "" {
		score += 3
	}
	if card.Address != "" {
		score += 2
	}
	if score > 100 {
		score = 100
	}
	return score
}

// key returns the merge key for a card: lower-case primary email, or
// (when no email) a company/name composite so company-only cards
// still merge against repeats instead of duplicating forever.
func key(card model.Card) (string, bool) {
	if email := card.PrimaryEmail(); email != "" {
		return "email:" + email, true
	}
	name := strings.ToLower(strings.TrimSpace(card.ContactName))
	company := strings.ToLower(strings.TrimSpace(card.CompanyName))
	if name == "" && company == "" {
		return "", false
	}
	return "noemail:" + company + "|" + name, true
}

// Merge combines cards from one or more miners/pages into canonical
// candidates. Cards are processed in the given order, which
// callers MUST supply highest-quality-miner-first: fields already set
// by an earlier card are never overwritten by a later one.
func Merge(cards []model.Card, tables blocklist.Tables) []model.Card {
	order := make([]string, 0, len(cards))
	merged := make(map[string]model.Card, len(cards))
	scores := make(map[string]int, len(cards))

	for _, raw := range cards {
		card := Normalize(raw, tables)
		k, ok := key(card)
		if !ok {
			continue
		}

		existing, found := merged[k]
		if !found {
			merged[k] = card
			scores[k] = Score(card, tables)
			order = append(order, k)
			continue
		}

		fillIfMissing(&existing, card)
		s := Score(card, tables)
		if s > scores[k] {
			scores[k] = s
		}
		merged[k] = existing
	}

	out := make([]model.Card, 0, len(order))
	for _, k := range order {
		card := merged[k]
		card.Confidence = scores[k]
		out = append(out, card)
	}
	return out
}

// fillIfMissing copies non-empty fields from incoming into dst only
// where dst's field is currently empty.
func fillIfMissing(dst *model.Card, incoming model.Card) {
	if dst.CompanyName == "" {
		dst.CompanyName = incoming.CompanyName
	}
	if dst.ContactName == "" {
		dst.ContactName = incoming.ContactName
	}
	if dst.JobTitle == "" {
		dst.JobTitle = incoming.JobTitle
	}
	if dst.Phone == "" {
		dst.Phone = incoming.Phone
	}
	if dst.Website == "" {
		dst.Website = incoming.Website
	}
	if dst.Country == "" {
		dst.Country = incoming.Country
	}
	if dst.City == "" {
		dst.City = incoming.City
	}
	if dst.Address == "" {
		dst.Address = incoming.Address
	}

	seen := make(map[string]bool, len(dst.Emails))
	for _, e := range dst.Emails {
		seen[strings.ToLower(e)] = true
	}
	for _, e := range incoming.Emails {
		le := strings.ToLower(e)
		if !seen[le] {
			seen[le] = true
			dst.Emails = append(dst.Emails, le)
		}
	}
}

// SortByConfidence orders candidates highest-confidence first, stable
// on ties so earlier-merged cards keep their relative position.
func SortByConfidence(cards []model.Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Confidence > cards[j].Confidence
	})
}
