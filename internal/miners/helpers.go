package miners

import (
	"regexp"
	"strings"

	"contactminer/internal/blocklist"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

var trailingPunctRe = regexp.MustCompile(`[.,;:!?)\]]+$`)

// ExtractEmails finds emails in text, normalizes to lower-case, strips
// trailing punctuation, and dedups while preserving first-seen order.
func ExtractEmails(text string) []string {
	matches := emailRe.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		cleaned := strings.ToLower(trailingPunctRe.ReplaceAllString(m, ""))
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		out = append(out, cleaned)
	}
	return out
}

// GuessWebsiteFromEmail returns the first email whose domain is not a
// known generic provider, rendered as https://{domain}.
func GuessWebsiteFromEmail(emails []string) string {
	for _, e := range emails {
		at := strings.LastIndex(e, "@")
		if at < 0 || at == len(e)-1 {
			continue
		}
		domain := strings.ToLower(e[at+1:])
		if blocklist.Default.IsGenericProvider(domain) {
			continue
		}
		return "https://" + domain
	}
	return ""
}

// IsBlacklistedWebsite reports whether url's host is an exact or
// suffix match against the URL-shortener list.
func IsBlacklistedWebsite(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	return blocklist.Default.IsShortener(host)
}

func hostOf(rawURL string) string {
	u := rawURL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	if i := strings.Index(u, "@"); i >= 0 {
		u = u[i+1:]
	}
	if i := strings.LastIndex(u, ":"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(u)
}

var phoneLabelRe = regexp.MustCompile(`(?i)\b(tel|phone|mobile|cell|fax)[:.]?\s*`)
var phoneDigitsRe = regexp.MustCompile(`\d`)

// CleanPhone removes common labels (tel/phone/mobile/cell/fax) and
// validates that the remaining digit count is between 7 and 16
// inclusive. It returns ok=false when the phone is unusable.
func CleanPhone(raw string) (cleaned string, ok bool) {
	s := phoneLabelRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)

	digits := phoneDigitsRe.FindAllString(s, -1)
	if len(digits) < 7 || len(digits) > 16 {
		return "", false
	}
	return s, true
}
