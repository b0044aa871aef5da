package extractors

import (
	"strings"
	"testing"
)

func TestParseColumnarDirectory(t *testing.T) {
	text := strings.Join([]string{
		"  1   Acme Industrial Corp          info@acme.example       Germany",
		"  2   Widgets International         sales@widgets.example   USA",
		"  3   Nameless Supplies",
		"      and Trading GmbH             contact@nameless.example Italy",
	}, "\n")

	cards := parseColumnarDirectory(text)
	if len(cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(cards))
	}
	if cards[0].CompanyName != "Acme Industrial Corp" {
		t.Errorf("unexpected company: %q", cards[0].CompanyName)
	}
	if len(cards[0].Emails) != 1 || cards[0].Emails[0] != "info@acme.example" {
		t.Errorf("unexpected emails: %v", cards[0].Emails)
	}
	if cards[0].Country != "DE" {
		t.Errorf("expected DE from country lexicon, got %q", cards[0].Country)
	}
	if cards[1].Country != "US" {
		t.Errorf("expected US, got %q", cards[1].Country)
	}
}

func TestParseColumnarDirectoryNoNumberedRows(t *testing.T) {
	if cards := parseColumnarDirectory("Just a paragraph of prose with alice@example.com inside."); cards != nil {
		t.Fatalf("expected nil for non-directory text, got %v", cards)
	}
}

func TestExtractRawScanMethodReadsTextObjects(t *testing.T) {
	raw := []byte("%PDF-1.4\nBT (Hello) Tj (World) Tj ET\nBT (second \\(page\\)) Tj ET")
	got := extractRawScanMethod(raw)
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "World") {
		t.Fatalf("expected parenthesized strings extracted, got %q", got)
	}
	if !strings.Contains(got, "second (page)") {
		t.Fatalf("expected escaped parens unescaped, got %q", got)
	}
}

func TestUsableTextLengthStripsControlBytes(t *testing.T) {
	s := "abc\x00\x01\x02def\n"
	if got := usableTextLength(s); got != 7 {
		t.Fatalf("expected 7 usable chars, got %d", got)
	}
}
