package merge

import (
	"testing"

	"contactminer/internal/blocklist"
	"contactminer/internal/model"
)

func TestMergeFillIfMissingNeverOverwrites(t *testing.T) {
	cards := []model.Card{
		{Emails: []string{"Alice@Example.com"}, CompanyName: "Acme Inc", ContactName: "Alice Smith"},
		{Emails: []string{"alice@example.com"}, CompanyName: "Wrong Co", Phone: "555-1234"},
	}

	out := Merge(cards, blocklist.Default)
	if len(out) != 1 {
		t.Fatalf("expected 1 merged card, got %d", len(out))
	}
	got := out[0]
	if got.CompanyName != "Acme Inc" {
		t.Errorf("company name was overwritten: got %q", got.CompanyName)
	}
	if got.Phone != "555-1234" {
		t.Errorf("expected phone filled from second card, got %q", got.Phone)
	}
	if got.PrimaryEmail() != "alice@example.com" {
		t.Errorf("expected normalized lower-case email, got %q", got.PrimaryEmail())
	}
}

func TestMergeConfidenceIsMaxOfContributors(t *testing.T) {
	cards := []model.Card{
		{Emails: []string{"bob@example.com"}},
		{Emails: []string{"bob@example.com"}, CompanyName: "Acme", ContactName: "Bob Jones", Phone: "123", Country: "US", Website: "https://acme.example"},
	}
	out := Merge(cards, blocklist.Default)
	if len(out) != 1 {
		t.Fatalf("expected 1 card, got %d", len(out))
	}
	if out[0].Confidence < 80 {
		t.Errorf("expected high confidence from enriched contributor, got %d", out[0].Confidence)
	}
}

func TestMergeKeepsNoEmailCardsSeparate(t *testing.T) {
	cards := []model.Card{
		{CompanyName: "Acme Inc", ContactName: "No Email Here"},
		{Emails: []string{"x@example.com"}, CompanyName: "Other Co"},
	}
	out := Merge(cards, blocklist.Default)
	if len(out) != 2 {
		t.Fatalf("expected 2 distinct candidates, got %d", len(out))
	}
}

func TestCleanSegmentDropsEmailLookingPipeSegments(t *testing.T) {
	card := model.Card{ContactName: "Jane Doe | no-reply@example.com | Lead Source"}
	got := Normalize(card, blocklist.Default)
	if got.ContactName != "Jane Doe" {
		t.Errorf("expected first plausible segment, got %q", got.ContactName)
	}
}

func TestScoreClampsAt100(t *testing.T) {
	card := model.Card{
		Emails:      []string{"person@example.com"},
		ContactName: "Person Name",
		CompanyName: "Acme",
		Phone:       "123",
		Country:     "US",
		Website:     "https://acme.example",
		JobTitle:    "CEO",
		City:        "Springfield",
		Address:     "1 Main St",
	}
	if got := Score(card, blocklist.Default); got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}
}
