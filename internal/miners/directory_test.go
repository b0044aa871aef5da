package miners

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestDeobfuscateReversedEmail(t *testing.T) {
	got, ok := deobfuscateReversedEmail("moc.elpmaxe@ecila")
	if !ok || got != "alice@example.com" {
		t.Fatalf("expected alice@example.com, got %q ok=%v", got, ok)
	}
	if _, ok := deobfuscateReversedEmail("just some text"); ok {
		t.Fatalf("expected non-email text to stay unrecognized")
	}
}

func TestParseJSONLDLocalBusiness(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
		{"@type":"LocalBusiness","telephone":"+1 555 123 4567","url":"https://acme.example",
		 "address":{"streetAddress":"1 Main St","addressLocality":"Springfield","addressCountry":"US"}}
	</script></head><body></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}

	ld := parseJSONLD(doc)
	if ld.Telephone != "+1 555 123 4567" {
		t.Errorf("unexpected telephone: %q", ld.Telephone)
	}
	if ld.URL != "https://acme.example" {
		t.Errorf("unexpected url: %q", ld.URL)
	}
	if !strings.Contains(ld.Address, "1 Main St") || !strings.Contains(ld.Address, "Springfield") {
		t.Errorf("unexpected address: %q", ld.Address)
	}
}

func TestFindDirectoryCardsKnownSelectors(t *testing.T) {
	html := `<html><body>
		<div class="listing-item"><h3>Acme Inc</h3><p>info@acme.example</p><a href="/biz/acme">more</a></div>
		<div class="listing-item"><h3>Widgets Co</h3><p>sales@widgets.example</p><a href="/biz/widgets">more</a></div>
	</body></html>`

	cards := findDirectoryCards(html, "https://directory.example/search")
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if cards[0].CompanyName != "Acme Inc" {
		t.Errorf("unexpected company: %q", cards[0].CompanyName)
	}
	if cards[0].PrimaryEmail() != "info@acme.example" {
		t.Errorf("unexpected email: %q", cards[0].PrimaryEmail())
	}
	if detail, _ := cards[0].Raw["detail_url"].(string); detail != "https://directory.example/biz/acme" {
		t.Errorf("unexpected detail url: %q", detail)
	}
}

func TestWithPageTokenOffsetAdvancesByPageSize(t *testing.T) {
	got, ok := withPageToken("https://api.example/search?q=x&offset=0", 3, 24)
	if !ok || got != "https://api.example/search?q=x&offset=48" {
		t.Fatalf("unexpected offset rewrite: %q ok=%v", got, ok)
	}

	got, ok = withPageToken("https://api.example/search?page=1", 4, 0)
	if !ok || got != "https://api.example/search?page=4" {
		t.Fatalf("unexpected page rewrite: %q ok=%v", got, ok)
	}

	if _, ok := withPageToken("https://api.example/search?q=x", 2, 0); ok {
		t.Fatalf("expected no rewrite without a page-like parameter")
	}
}
