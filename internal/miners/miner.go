// Package miners implements the uniform Mine(job) -> Result contract
// and its family of extractors: HTTP Basic, Browser
// List+Detail, Table, Directory, Document, File, AI, and a
// site-specific "vendor catalog" miner. The miner set is declared
// statically (Registry) rather than discovered at load time.
package miners

import (
	"context"
	"errors"

	"contactminer/internal/model"
)

// ErrBlockDetected is the typed sentinel a miner returns (never
// panics with) when it detects the target site is refusing automated
// access. Its Error() text contains the BLOCK_DETECTED token so any
// code matching on the legacy substring convention keeps working.
var ErrBlockDetected = errors.New("BLOCK_DETECTED: target site refused automated access")

// Miner is the uniform contract every extractor implements.
type Miner interface {
	Name() string
	Mine(ctx context.Context, job model.Job, input Input) (model.MinerResult, error)
}

// Input carries the pieces of job state a miner needs without forcing
// every miner to depend on the orchestrator or store packages.
type Input struct {
	// URL is the page (or detail page) being mined; empty for file jobs.
	URL string
	// FileBytes holds the normalized file content for file-type jobs.
	FileBytes []byte
	// FileName is the original uploaded filename, used for extension
	// dispatch in the File miner.
	FileName string
	// PageHTML, when non-empty, is already-fetched HTML the miner should
	// use instead of re-fetching (handoff from the Page Analyzer).
	PageHTML string
}

// NotAvailable builds the MinerResult a miner declared in the registry
// but not wired in this build returns: an explicit no-op with
// not_available meta rather than a silent absence.
func NotAvailable(name string) model.MinerResult {
	return model.MinerResult{
		Status: model.StatusEmpty,
		Meta:   model.MinerMeta{Source: name, Notes: "not_available"},
	}
}

// Registry is the static, compile-time set of miners the Orchestrator
// may dispatch to, keyed by the name Analyzer.Recommendation.Miner
// names.
type Registry struct {
	miners map[string]Miner
}

// NewRegistry builds a Registry from the given miners, keyed by their
// own Name().
func NewRegistry(ms ...Miner) *Registry {
	r := &Registry{miners: make(map[string]Miner, len(ms))}
	for _, m := range ms {
		r.miners[m.Name()] = m
	}
	return r
}

// Get resolves a miner by name; ok is false when it is not registered
// in this build (see NotAvailable).
func (r *Registry) Get(name string) (Miner, bool) {
	m, ok := r.miners[name]
	return m, ok
}
