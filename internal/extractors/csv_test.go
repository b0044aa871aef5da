package extractors

import "testing"

// Header `Name, Email, Company, Lead Source, Country`:
// column mapper binds "Lead Source" -> source, not name; "Name" maps to
// contact_name; all four emails become cards.
func TestExtractCSVLeadSourceDoesNotCollideWithName(t *testing.T) {
	csvData := "Name,Email,Company,Lead Source,Country\n" +
		"Alice Smith,alice@acme.com,Acme Inc,Trade Show,US\n" +
		"Bob Jones,bob@widgets.com,Widgets Co,Referral,DE\n" +
		"Carol Lee,carol@example.com,Example LLC,Website,FR\n" +
		"Dave Kim,dave@sample.org,Sample Org,Email Campaign,KR\n"

	cards, err := ExtractCSV([]byte(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cards) != 4 {
		t.Fatalf("expected 4 cards, got %d", len(cards))
	}
	for _, c := range cards {
		if c.ContactName == "" {
			t.Fatalf("expected contact name to be populated from Name column: %+v", c)
		}
		if c.PrimaryEmail() == "" {
			t.Fatalf("expected an email for every row: %+v", c)
		}
	}
	if cards[0].ContactName != "Alice Smith" {
		t.Fatalf("expected Name column to map to contact name, got %q", cards[0].ContactName)
	}
}

// A headerless CSV falls back to scanning all cells and still
// produces cards when an email is present.
func TestExtractCSVHeaderlessFallback(t *testing.T) {
	csvData := "Acme Inc,alice@acme.com,555-1234\nWidgets Co,bob@widgets.com,555-5678\n"

	cards, err := ExtractCSV([]byte(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards from headerless scan, got %d", len(cards))
	}
	if cards[0].PrimaryEmail() != "alice@acme.com" {
		t.Fatalf("unexpected primary email: %s", cards[0].PrimaryEmail())
	}
}
