package aggregate

import (
	"testing"

	"contactminer/internal/blocklist"
	"contactminer/internal/model"
)

func TestCanonicalizeEmailIdempotent(t *testing.T) {
	for _, in := range []string{"Alice@Example.COM", "  bob@example.com ", "carol@example.com"} {
		once := CanonicalizeEmail(in)
		if twice := CanonicalizeEmail(once); twice != once {
			t.Errorf("CanonicalizeEmail not idempotent for %q: %q != %q", in, once, twice)
		}
	}
	if got := CanonicalizeEmail(" Alice@Example.COM"); got != "alice@example.com" {
		t.Errorf("unexpected canonical form %q", got)
	}
}

func TestBuildPlanUsesContactName(t *testing.T) {
	card := model.Card{Emails: []string{"x@example.com"}, ContactName: "Jane Doe"}
	plan, ok := BuildPlan("org-1", card, model.SourceMining, "https://example.com", nil, blocklist.Default)
	if !ok {
		t.Fatalf("expected a plan")
	}
	if plan.Person.FirstName != "Jane" || plan.Person.LastName != "Doe" {
		t.Errorf("expected Jane Doe, got %q %q", plan.Person.FirstName, plan.Person.LastName)
	}
}

func TestParseNameFromPipeContext(t *testing.T) {
	name, ok := ParseName("Jane Doe | Acme Inc | Sales", "jdoe@example.com", blocklist.Default)
	if !ok || name != "Jane Doe" {
		t.Fatalf("expected Jane Doe, got %q ok=%v", name, ok)
	}
}

func TestParseNameStripsTitleAndSuffix(t *testing.T) {
	name, ok := ParseName("Dr. John Smith Jr. (CEO)", "jsmith@example.com", blocklist.Default)
	if !ok || name != "John Smith" {
		t.Fatalf("expected John Smith, got %q ok=%v", name, ok)
	}
}

func TestParseNameEmailPrefixFallback(t *testing.T) {
	name, ok := ParseName("", "alice.johnson@example.com", blocklist.Default)
	if !ok || name != "Alice Johnson" {
		t.Fatalf("expected Alice Johnson, got %q ok=%v", name, ok)
	}
}

func TestParseNameRejectsGenericPrefix(t *testing.T) {
	if _, ok := ParseName("", "info@example.com", blocklist.Default); ok {
		t.Fatalf("expected generic prefix to be rejected")
	}
}

func TestBuildPlanRequiresEmail(t *testing.T) {
	if _, ok := BuildPlan("org-1", model.Card{CompanyName: "Acme"}, model.SourceMining, "https://example.com", nil, blocklist.Default); ok {
		t.Fatalf("expected no plan without an email")
	}
}

func TestBuildPlanNoCompanyHasNoCompanyFlag(t *testing.T) {
	plan, ok := BuildPlan("org-1", model.Card{Emails: []string{"a@example.com"}}, model.SourceMining, "https://example.com", nil, blocklist.Default)
	if !ok {
		t.Fatalf("expected a plan")
	}
	if plan.Affiliation.HasCompany {
		t.Errorf("expected HasCompany false when card has no company")
	}
}

func TestBatchesSplitsAtMaxBatchSize(t *testing.T) {
	plans := make([]Plan, MaxBatchSize+10)
	batches := Batches(plans)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if len(batches[0]) != MaxBatchSize || len(batches[1]) != 10 {
		t.Errorf("unexpected batch sizes: %d, %d", len(batches[0]), len(batches[1]))
	}
}
