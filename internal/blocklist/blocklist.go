// Package blocklist holds the immutable runtime-constant tables the
// rest of the pipeline consults: social-media domains, URL-shortener
// hosts, generic email providers, and country keyword synonyms.
// Every table here is a package-level value built once at
// init; tests inject alternates through the Tables struct rather than
// mutating these globals.
package blocklist

import "strings"

// Tables groups the lookup tables a component needs, so tests can
// construct an alternate set without touching the package globals.
type Tables struct {
	SocialDomains    map[string]bool
	ShortenerHosts   map[string]bool
	GenericProviders map[string]bool
	GenericPrefixes  map[string]bool
	DirectoryHosts   []string
	CountryKeywords  map[string]string // lower(keyword) -> ISO alpha-2
}

// Default is the package-wide, immutable table set used when callers
// do not inject an alternate.
var Default = Tables{
	SocialDomains:    socialDomains,
	ShortenerHosts:   shortenerHosts,
	GenericProviders: genericProviders,
	GenericPrefixes:  genericPrefixes,
	DirectoryHosts:   directoryHosts,
	CountryKeywords:  countryKeywords,
}

var socialDomains = boolSet(
	"facebook.com", "twitter.com", "x.com", "instagram.com", "linkedin.com",
	"youtube.com", "tiktok.com", "pinterest.com", "snapchat.com", "reddit.com",
	"whatsapp.com", "telegram.org", "wechat.com",
)

var shortenerHosts = boolSet(
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd", "buff.ly",
	"rebrand.ly", "cutt.ly", "tiny.cc", "shorturl.at", "s.id",
)

var genericProviders = boolSet(
	"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "aol.com",
	"icloud.com", "live.com", "msn.com", "mail.com", "protonmail.com",
	"gmx.com", "yandex.com", "qq.com", "163.com", "126.com", "zoho.com",
)

var genericPrefixes = boolSet(
	"info", "support", "sales", "noreply", "no-reply", "contact", "admin",
	"office", "hello", "enquiry", "enquiries", "inquiries", "mail",
	"webmaster", "marketing", "help", "service", "team",
)

var directoryHosts = []string{
	"yellowpages", "yelp.com", "chamberofcommerce", "chamber.",
	"bbb.org", "manta.com", "thomasnet", "kompass.com", "europages",
	"dnb.com", "zoominfo.com", "crunchbase.com",
}

// countryKeywords maps lower-case country-name synonyms and common
// adjectival/abbreviation forms to ISO-3166 alpha-2 codes. This is a
// deliberately partial table: it covers the countries that most often
// appear in exhibitor catalogs and trade-show directories.
var countryKeywords = buildCountryKeywords()

func boolSet(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[strings.ToLower(v)] = true
	}
	return m
}

func buildCountryKeywords() map[string]string {
	raw := map[string][]string{
		"US": {"united states", "usa", "u.s.a.", "u.s.", "america"},
		"GB": {"united kingdom", "uk", "u.k.", "great britain", "england", "scotland", "wales"},
		"DE": {"germany", "deutschland"},
		"FR": {"france"},
		"IT": {"italy", "italia"},
		"ES": {"spain", "espana", "españa"},
		"NL": {"netherlands", "holland", "the netherlands"},
		"BE": {"belgium", "belgique"},
		"CH": {"switzerland", "suisse", "schweiz"},
		"AT": {"austria", "österreich"},
		"SE": {"sweden"},
		"NO": {"norway"},
		"DK": {"denmark"},
		"FI": {"finland"},
		"PL": {"poland", "polska"},
		"PT": {"portugal"},
		"IE": {"ireland"},
		"CA": {"canada"},
		"MX": {"mexico", "méxico"},
		"BR": {"brazil", "brasil"},
		"AR": {"argentina"},
		"CN": {"china", "prc"},
		"JP": {"japan"},
		"KR": {"south korea", "korea, republic of", "republic of korea"},
		"IN": {"india"},
		"AU": {"australia"},
		"NZ": {"new zealand"},
		"ZA": {"south africa"},
		"AE": {"united arab emirates", "uae", "dubai", "abu dhabi"},
		"SA": {"saudi arabia", "ksa"},
		"TR": {"turkey", "türkiye"},
		"RU": {"russia", "russian federation"},
		"SG": {"singapore"},
		"MY": {"malaysia"},
		"TH": {"thailand"},
		"VN": {"vietnam", "viet nam"},
		"ID": {"indonesia"},
		"PH": {"philippines"},
	}
	m := make(map[string]string, len(raw)*2)
	for code, keywords := range raw {
		for _, kw := range keywords {
			m[strings.ToLower(kw)] = code
		}
	}
	return m
}

// IsSocialMedia reports whether host (or a parent domain of host) is a
// known social-media domain.
func (t Tables) IsSocialMedia(host string) bool {
	return suffixMatch(t.SocialDomains, host)
}

// IsShortener reports whether host is a known URL-shortener host.
func (t Tables) IsShortener(host string) bool {
	return suffixMatch(t.ShortenerHosts, host)
}

// IsGenericProvider reports whether domain is a known generic email
// provider (gmail.com, yahoo.com, ...).
func (t Tables) IsGenericProvider(domain string) bool {
	return t.GenericProviders[strings.ToLower(domain)]
}

// IsGenericPrefix reports whether the local-part of an email (the text
// before @) is a generic role account like "info" or "sales".
func (t Tables) IsGenericPrefix(prefix string) bool {
	return t.GenericPrefixes[strings.ToLower(prefix)]
}

// IsDirectoryHost reports whether hostname contains one of the fixed
// directory-site tokens.
func (t Tables) IsDirectoryHost(hostname string) bool {
	h := strings.ToLower(hostname)
	for _, token := range t.DirectoryHosts {
		if strings.Contains(h, token) {
			return true
		}
	}
	return false
}

// CountryCode looks up an ISO alpha-2 country code for a free-text
// country keyword (case-insensitive substring candidates are tried by
// the caller; this performs only the exact keyword lookup).
func (t Tables) CountryCode(keyword string) (string, bool) {
	code, ok := t.CountryKeywords[strings.ToLower(strings.TrimSpace(keyword))]
	return code, ok
}

// suffixMatch reports whether host equals a table entry or is a
// subdomain of one (exact-or-suffix match, the IsBlacklistedWebsite
// contract).
func suffixMatch(table map[string]bool, host string) bool {
	h := strings.ToLower(strings.TrimPrefix(host, "www."))
	if table[h] {
		return true
	}
	for entry := range table {
		if strings.HasSuffix(h, "."+entry) {
			return true
		}
	}
	return false
}
