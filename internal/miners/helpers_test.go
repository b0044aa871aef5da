package miners

import "testing"

func TestExtractEmailsDedupsAndNormalizes(t *testing.T) {
	text := "Contact Alice@Example.com or alice@example.com, also BOB@widgets.com."
	emails := ExtractEmails(text)
	if len(emails) != 2 {
		t.Fatalf("expected 2 unique emails, got %v", emails)
	}
	if emails[0] != "alice@example.com" {
		t.Fatalf("expected lower-cased first email, got %s", emails[0])
	}
}

func TestGuessWebsiteFromEmailSkipsGenericProviders(t *testing.T) {
	got := GuessWebsiteFromEmail([]string{"alice@gmail.com", "bob@acme-corp.com"})
	if got != "https://acme-corp.com" {
		t.Fatalf("expected acme-corp.com, got %s", got)
	}
}

func TestGuessWebsiteFromEmailAllGeneric(t *testing.T) {
	got := GuessWebsiteFromEmail([]string{"alice@gmail.com", "bob@yahoo.com"})
	if got != "" {
		t.Fatalf("expected empty result when every domain is generic, got %s", got)
	}
}

func TestIsBlacklistedWebsiteSuffixMatch(t *testing.T) {
	if !IsBlacklistedWebsite("https://go.bit.ly/abc") {
		t.Fatalf("expected subdomain of shortener to be blacklisted")
	}
	if IsBlacklistedWebsite("https://acme.com") {
		t.Fatalf("expected acme.com not to be blacklisted")
	}
}

func TestCleanPhoneValidatesDigitRange(t *testing.T) {
	if _, ok := CleanPhone("tel: 12"); ok {
		t.Fatalf("expected too-short phone to be rejected")
	}
	cleaned, ok := CleanPhone("Phone: +1 (555) 123-4567")
	if !ok {
		t.Fatalf("expected valid phone to be accepted")
	}
	if cleaned == "" {
		t.Fatalf("expected non-empty cleaned phone")
	}
}
