package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"contactminer/internal/aggregate"
	"contactminer/internal/analyzer"
	"contactminer/internal/htmlcache"
	"contactminer/internal/miners"
	"contactminer/internal/model"
)

// fakeStore is an in-memory double for the Orchestrator's Store
// dependency so Run can be exercised without a live database.
type fakeStore struct {
	marked      bool
	completed   bool
	status      model.Status
	errMsg      *string
	stats       map[string]any
	miningCards []model.Card
	plans       [][]aggregate.Plan
}

func (f *fakeStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	f.marked = true
	return nil
}

func (f *fakeStore) CompleteJob(ctx context.Context, id uuid.UUID, status model.Status, errMsg *string, stats map[string]any) error {
	f.completed = true
	f.status = status
	f.errMsg = errMsg
	f.stats = stats
	return nil
}

func (f *fakeStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress, totalPages, processedPages, totalFound, totalEmailsRaw int) error {
	return nil
}

func (f *fakeStore) InsertMiningResults(ctx context.Context, jobID, organizerID uuid.UUID, sourceURL string, cards []model.Card) error {
	f.miningCards = cards
	return nil
}

func (f *fakeStore) UpsertPersonsAndAffiliations(ctx context.Context, plans []aggregate.Plan) error {
	f.plans = append(f.plans, plans)
	return nil
}

// fakeMiner returns a scripted result/error regardless of input.
type fakeMiner struct {
	name   string
	result model.MinerResult
	err    error
}

func (f *fakeMiner) Name() string { return f.name }
func (f *fakeMiner) Mine(ctx context.Context, job model.Job, in miners.Input) (model.MinerResult, error) {
	return f.result, f.err
}

func newTestOrchestrator(t *testing.T, st Store, reg *miners.Registry) *Orchestrator {
	t.Helper()
	cache := htmlcache.New(time.Minute, 1<<20)
	an := analyzer.New(cache, analyzer.Config{Timeout: 5 * time.Second})
	return &Orchestrator{
		Store:      st,
		Analyzer:   an,
		Registry:   reg,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestRunQuickModeCompletesWithCards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body></html>`))
	}))
	defer srv.Close()

	httpMiner := &fakeMiner{name: "http_basic", result: model.MinerResult{
		Status:   model.StatusSuccess,
		Contacts: []model.Card{{Emails: []string{"Alice@Example.com"}, ContactName: "Alice Smith"}},
	}}
	reg := miners.NewRegistry(httpMiner)
	st := &fakeStore{}
	o := newTestOrchestrator(t, st, reg)

	job := model.Job{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		Type:        model.JobTypeURL,
		Input:       srv.URL,
		Config:      model.JobConfig{MiningMode: model.ModeQuick},
	}

	o.Run(context.Background(), job)

	if !st.marked || !st.completed {
		t.Fatalf("expected job marked running then completed")
	}
	if st.status != model.StatusCompleted {
		t.Errorf("expected completed status, got %q (err=%v)", st.status, st.errMsg)
	}
	if len(st.miningCards) != 1 || st.miningCards[0].PrimaryEmail() != "alice@example.com" {
		t.Errorf("expected one normalized card, got %+v", st.miningCards)
	}
}

func TestRunBlockDetectedEndsTerminalBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body></html>`))
	}))
	defer srv.Close()

	browserMiner := &fakeMiner{name: "browser_list_detail", err: miners.ErrBlockDetected}
	reg := miners.NewRegistry(browserMiner)
	st := &fakeStore{}
	o := newTestOrchestrator(t, st, reg)

	job := model.Job{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		Type:        model.JobTypeURL,
		Input:       srv.URL,
		Strategy:    model.StrategyPlaywright,
		Config:      model.JobConfig{MiningMode: model.ModeQuick},
	}

	o.Run(context.Background(), job)

	if st.status != model.StatusBlocked {
		t.Fatalf("expected blocked status, got %q", st.status)
	}
	if st.errMsg == nil {
		t.Errorf("expected a descriptive error message on blocked job")
	}
}

func TestRunUnknownJobTypeFails(t *testing.T) {
	reg := miners.NewRegistry()
	st := &fakeStore{}
	o := newTestOrchestrator(t, st, reg)

	job := model.Job{ID: uuid.New(), OrganizerID: uuid.New(), Type: model.JobType("bogus"), Input: "x"}
	o.Run(context.Background(), job)

	if st.status != model.StatusFailed {
		t.Fatalf("expected failed status for unknown job type, got %q", st.status)
	}
}

func TestRunFilePathDropsCardsWithoutEmail(t *testing.T) {
	fileMiner := &fakeMiner{name: "file", result: model.MinerResult{
		Status: model.StatusSuccess,
		Contacts: []model.Card{
			{Emails: []string{"Bob@Example.com"}, CompanyName: "Acme"},
			{CompanyName: "No Email Co"},
		},
	}}
	reg := miners.NewRegistry(fileMiner)
	st := &fakeStore{}
	o := newTestOrchestrator(t, st, reg)

	job := model.Job{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		Type:        model.JobTypeCSV,
		Input:       "contacts.csv",
	}
	o.Run(context.Background(), job)

	if st.status != model.StatusCompleted {
		t.Fatalf("expected completed status, got %q (err=%v)", st.status, st.errMsg)
	}
	if len(st.miningCards) != 1 {
		t.Fatalf("expected the no-email card dropped, got %d cards", len(st.miningCards))
	}
}

func TestRunAggregatesPersonsUnlessShadowModeDisabled(t *testing.T) {
	httpMiner := &fakeMiner{name: "http_basic", result: model.MinerResult{
		Status:   model.StatusSuccess,
		Contacts: []model.Card{{Emails: []string{"carol@example.com"}, ContactName: "Carol Jones", CompanyName: "Acme"}},
	}}
	reg := miners.NewRegistry(httpMiner)
	st := &fakeStore{}
	o := newTestOrchestrator(t, st, reg)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body></html>`))
	}))
	defer srv.Close()

	job := model.Job{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		Type:        model.JobTypeURL,
		Input:       srv.URL,
		Config:      model.JobConfig{MiningMode: model.ModeQuick},
	}
	o.Run(context.Background(), job)

	if len(st.plans) != 1 || len(st.plans[0]) != 1 {
		t.Fatalf("expected one aggregation batch with one plan, got %+v", st.plans)
	}
}
